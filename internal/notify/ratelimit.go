package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/venue"
)

const (
	rateWindow     = 24 * time.Hour
	perCategoryCap = 2
	criticalBypass = "critical"
)

// RateLimited wraps a Notifier with the 2-per-24h per-category cap.
// Messages in the critical category bypass the cap once per window.
type RateLimited struct {
	inner  venue.Notifier
	clock  venue.Clock
	logger *zap.Logger

	mu       sync.Mutex
	sentAt   map[string][]time.Time
	bypassed map[string]time.Time
}

func NewRateLimited(inner venue.Notifier, clock venue.Clock, logger *zap.Logger) *RateLimited {
	return &RateLimited{
		inner:    inner,
		clock:    clock,
		logger:   logger.Named("notify-limiter"),
		sentAt:   make(map[string][]time.Time),
		bypassed: make(map[string]time.Time),
	}
}

// Send forwards the message unless the category is over its window cap.
// A suppressed message is not an error; the caller already logged the
// underlying event.
func (r *RateLimited) Send(ctx context.Context, category, text string) error {
	if !r.allow(category) {
		suppressedTotal.WithLabelValues(category).Inc()
		r.logger.Debug("notification-suppressed", zap.String("category", category))
		return nil
	}
	return r.inner.Send(ctx, category, text)
}

// SendCritical bypasses the cap once per window per category, for
// invariant violations that must reach the operator.
func (r *RateLimited) SendCritical(ctx context.Context, category, text string) error {
	now := r.clock.Now()
	r.mu.Lock()
	last, used := r.bypassed[category]
	canBypass := !used || now.Sub(last) >= rateWindow
	if canBypass {
		r.bypassed[category] = now
	}
	r.mu.Unlock()

	if canBypass {
		return r.inner.Send(ctx, criticalBypass+":"+category, text)
	}
	return r.Send(ctx, category, text)
}

func (r *RateLimited) allow(category string) bool {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	recent := r.sentAt[category][:0]
	for _, at := range r.sentAt[category] {
		if now.Sub(at) < rateWindow {
			recent = append(recent, at)
		}
	}
	if len(recent) >= perCategoryCap {
		r.sentAt[category] = recent
		return false
	}
	r.sentAt[category] = append(recent, now)
	return true
}
