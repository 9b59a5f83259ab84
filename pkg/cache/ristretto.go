package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoSet is a TTLSet backed by a dedicated Ristretto cache.
// Expiry is enforced by Ristretto's TTL machinery; the engine's periodic
// sweep fiber only needs to trigger Wait so evictions are applied.
type RistrettoSet struct {
	name   string
	ttl    time.Duration
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for one TTL set.
type RistrettoConfig struct {
	Name       string // label used in metrics and logs
	TTL        time.Duration
	MaxEntries int64
	Logger     *zap.Logger
}

// NewRistrettoSet creates a TTL set.
func NewRistrettoSet(cfg *RistrettoConfig) (*RistrettoSet, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("ttl set %q: ttl must be positive", cfg.Name)
	}
	maxEntries := cfg.MaxEntries
	if maxEntries == 0 {
		maxEntries = 1 << 14
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("new ristretto cache: %w", err)
	}

	return &RistrettoSet{
		name:   cfg.Name,
		ttl:    cfg.TTL,
		cache:  cache,
		logger: cfg.Logger,
	}, nil
}

// Add inserts key with the set's TTL.
func (s *RistrettoSet) Add(key string) {
	s.AddAt(key, time.Now())
}

// AddAt inserts key with an explicit observation timestamp.
func (s *RistrettoSet) AddAt(key string, at time.Time) {
	// Cost 1: entries are counted, not sized.
	s.cache.SetWithTTL(key, at, 1, s.ttl)
	s.cache.Wait()
	CacheSetsTotal.WithLabelValues(s.name).Inc()
	s.logger.Debug("ttlset-add",
		zap.String("set", s.name),
		zap.String("key", key),
		zap.Duration("ttl", s.ttl))
}

// Has reports whether key is present and unexpired.
func (s *RistrettoSet) Has(key string) bool {
	_, found := s.cache.Get(key)
	if found {
		CacheHitsTotal.WithLabelValues(s.name).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(s.name).Inc()
	}
	return found
}

// ObservedAt returns the timestamp stored for key.
func (s *RistrettoSet) ObservedAt(key string) (time.Time, bool) {
	v, found := s.cache.Get(key)
	if !found {
		return time.Time{}, false
	}
	at, ok := v.(time.Time)
	return at, ok
}

// Delete removes key.
func (s *RistrettoSet) Delete(key string) {
	s.cache.Del(key)
}

// Sweep applies pending writes and evictions. The supervisor calls this
// from the hash-cache sweep fiber.
func (s *RistrettoSet) Sweep() {
	s.cache.Wait()
}

// Close releases the underlying cache.
func (s *RistrettoSet) Close() {
	s.cache.Close()
	s.logger.Debug("ttlset-closed", zap.String("set", s.name))
}
