// Package pricetracker maintains the last valid source and mirror prices.
// Polls are best effort: a failed or abnormal sample leaves the previous
// valid price in place, so readers always see a usable pair.
package pricetracker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/venue"
)

// maxPlausibleDiff rejects samples that put the two venues more than this
// many USD apart; such readings are venue glitches, not market moves.
const maxPlausibleDiff = 5000.0

// Prices is a consistent read of the tracker state.
type Prices struct {
	Source  float64
	Mirror  float64
	DiffAbs float64
	Valid   bool // both venues have produced at least one valid sample
}

type Config struct {
	Source venue.SourceClient
	Mirror venue.MirrorClient
	Logger *zap.Logger
}

type Tracker struct {
	source venue.SourceClient
	mirror venue.MirrorClient
	logger *zap.Logger

	mu             sync.RWMutex
	sourcePrice    float64
	mirrorPrice    float64
	sourceFailures int
	mirrorFailures int
}

func New(cfg *Config) *Tracker {
	return &Tracker{
		source: cfg.Source,
		mirror: cfg.Mirror,
		logger: cfg.Logger.Named("price-tracker"),
	}
}

// Refresh polls both venues once. Each venue is handled independently so
// one failing feed does not stall the other.
func (t *Tracker) Refresh(ctx context.Context) {
	if ticker, err := t.source.GetTicker(ctx); err != nil {
		t.recordFailure("source", err)
	} else {
		t.accept("source", ticker.Last)
	}

	if ticker, err := t.mirror.GetTicker(ctx); err != nil {
		t.recordFailure("mirror", err)
	} else {
		t.accept("mirror", ticker.Last)
	}

	t.mu.RLock()
	src, mir := t.sourcePrice, t.mirrorPrice
	t.mu.RUnlock()
	if src > 0 && mir > 0 {
		priceDiffGauge.Set(abs(src - mir))
	}
}

func (t *Tracker) recordFailure(side string, err error) {
	pollFailuresTotal.WithLabelValues(side).Inc()
	t.mu.Lock()
	if side == "source" {
		t.sourceFailures++
	} else {
		t.mirrorFailures++
	}
	t.mu.Unlock()
	t.logger.Warn("ticker-poll-failed", zap.String("venue", side), zap.Error(err))
}

// accept applies a sample unless it is abnormal: non-positive, or so far
// from the other venue's last valid price that it cannot be real.
func (t *Tracker) accept(side string, last float64) {
	t.mu.Lock()
	other := t.mirrorPrice
	if side == "mirror" {
		other = t.sourcePrice
	}
	rejected := last <= 0 || (other > 0 && abs(last-other) > maxPlausibleDiff)
	if !rejected {
		if side == "source" {
			t.sourcePrice = last
			t.sourceFailures = 0
		} else {
			t.mirrorPrice = last
			t.mirrorFailures = 0
		}
	}
	t.mu.Unlock()

	if rejected {
		rejectedSamplesTotal.WithLabelValues(side).Inc()
		t.logger.Warn("price-sample-rejected",
			zap.String("venue", side),
			zap.Float64("last", last),
			zap.Float64("other", other))
		return
	}
	priceGauge.WithLabelValues(side).Set(last)
}

// Prices returns the last valid pair. Valid is false until both venues
// have reported at least once.
func (t *Tracker) Prices() Prices {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := Prices{Source: t.sourcePrice, Mirror: t.mirrorPrice}
	if p.Source > 0 && p.Mirror > 0 {
		p.DiffAbs = abs(p.Source - p.Mirror)
		p.Valid = true
	}
	return p
}

// Failures reports consecutive poll failures per venue.
func (t *Tracker) Failures() (source, mirror int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sourceFailures, t.mirrorFailures
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
