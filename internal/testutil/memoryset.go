package testutil

import (
	"sync"
	"time"
)

// MemorySet is a map-backed TTL set without expiry, deterministic where
// the production ristretto-backed set is asynchronous.
type MemorySet struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemorySet() *MemorySet {
	return &MemorySet{entries: make(map[string]time.Time)}
}

func (s *MemorySet) Add(key string) { s.AddAt(key, time.Now()) }

func (s *MemorySet) AddAt(key string, at time.Time) {
	s.mu.Lock()
	s.entries[key] = at
	s.mu.Unlock()
}

func (s *MemorySet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *MemorySet) ObservedAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.entries[key]
	return at, ok
}

func (s *MemorySet) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *MemorySet) Close() {}

// Len reports the current entry count.
func (s *MemorySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
