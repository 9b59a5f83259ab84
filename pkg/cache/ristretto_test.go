package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSet(t *testing.T, ttl time.Duration) *RistrettoSet {
	t.Helper()
	s, err := NewRistrettoSet(&RistrettoConfig{
		Name:   "test",
		TTL:    ttl,
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRistrettoSet_AddHas(t *testing.T) {
	s := newTestSet(t, time.Minute)

	assert.False(t, s.Has("order-1"))
	s.Add("order-1")
	assert.True(t, s.Has("order-1"))
	assert.False(t, s.Has("order-2"))
}

func TestRistrettoSet_Expiry(t *testing.T) {
	s := newTestSet(t, 50*time.Millisecond)

	s.Add("short-lived")
	require.True(t, s.Has("short-lived"))

	time.Sleep(120 * time.Millisecond)
	s.Sweep()
	assert.False(t, s.Has("short-lived"))
}

func TestRistrettoSet_ObservedAt(t *testing.T) {
	s := newTestSet(t, time.Minute)

	at := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	s.AddAt("filled-1", at)

	got, ok := s.ObservedAt("filled-1")
	require.True(t, ok)
	assert.Equal(t, at, got)

	_, ok = s.ObservedAt("missing")
	assert.False(t, ok)
}

func TestRistrettoSet_Delete(t *testing.T) {
	s := newTestSet(t, time.Minute)

	s.Add("gone")
	require.True(t, s.Has("gone"))
	s.Delete("gone")
	s.Sweep()
	assert.False(t, s.Has("gone"))
}

func TestNewRistrettoSet_RejectsZeroTTL(t *testing.T) {
	_, err := NewRistrettoSet(&RistrettoConfig{Name: "bad", Logger: zap.NewNop()})
	require.Error(t, err)
}
