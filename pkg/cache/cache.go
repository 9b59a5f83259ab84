// Package cache provides the time-bounded sets the reconciliation engine
// uses to stay idempotent across tick storms: recently processed order IDs,
// canonical order hashes, and recent-fill evidence.
package cache

import "time"

// TTLSet is a set whose members expire after a fixed lifetime.
type TTLSet interface {
	// Add inserts key, stamping it with the set's TTL.
	Add(key string)

	// AddAt inserts key with an explicit timestamp value, retrievable via
	// ObservedAt.
	AddAt(key string, at time.Time)

	// Has reports whether key is present and unexpired.
	Has(key string) bool

	// ObservedAt returns the timestamp stored by AddAt, if present.
	ObservedAt(key string) (time.Time, bool)

	// Delete removes key.
	Delete(key string)

	// Close releases resources.
	Close()
}
