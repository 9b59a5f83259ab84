// Package marginguard keeps the mirror account in cross-margin. The
// guard is consulted on a 5 minute cadence and unconditionally before
// every mirror-side mutation; failure degrades to best effort and never
// blocks the caller.
package marginguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// notifyAfterFailures is the consecutive-failure count that triggers one
// operator notification.
const notifyAfterFailures = 3

// FailureCounter receives guard failures so they show up in the engine
// stats surface alongside the other reconciliation counters.
type FailureCounter interface {
	MarginModeFailure()
}

type Config struct {
	Mirror   venue.MirrorClient
	Notifier venue.Notifier
	Clock    venue.Clock
	Stats    FailureCounter // nil disables the engine counter
	Contract string
	Leverage int // leverage re-applied by the stronger coercion stages
	Logger   *zap.Logger
}

type Guard struct {
	mirror   venue.MirrorClient
	notifier venue.Notifier
	clock    venue.Clock
	stats    FailureCounter
	contract string
	leverage int
	logger   *zap.Logger

	mu           sync.Mutex
	failures     int
	notified     bool
	lastMode     types.MarginMode
	lastModeRead time.Time
}

func New(cfg *Config) *Guard {
	leverage := cfg.Leverage
	if leverage == 0 {
		leverage = types.DefaultLeverage
	}
	return &Guard{
		mirror:   cfg.Mirror,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		stats:    cfg.Stats,
		contract: cfg.Contract,
		leverage: leverage,
		logger:   cfg.Logger.Named("margin-guard"),
	}
}

// Ensure verifies the account is in cross-margin, coercing it when not.
// It returns true when the final reading is cross. False is advisory:
// callers proceed best effort and the guard keeps retrying on its own
// cadence.
func (g *Guard) Ensure(ctx context.Context) bool {
	mode, err := g.mirror.GetMarginMode(ctx, g.contract)
	if err != nil {
		g.logger.Warn("margin-mode-read-failed", zap.Error(err))
		g.recordFailure(ctx)
		return false
	}
	g.recordMode(mode)
	if mode == types.MarginModeCross {
		g.recordSuccess()
		return true
	}

	checksTotal.Inc()
	g.logger.Warn("margin-mode-not-cross", zap.String("mode", string(mode)))

	if g.coerce(ctx) {
		g.recordSuccess()
		return true
	}
	g.recordFailure(ctx)
	return false
}

// coerce runs the escalating coercion sequence and re-reads the mode
// after each stage. Later stages are more intrusive: they reset leverage,
// which on some venues is the only way to break out of isolated mode.
func (g *Guard) coerce(ctx context.Context) bool {
	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"force-cross", func(ctx context.Context) error {
			return g.mirror.ForceCrossMargin(ctx, g.contract)
		}},
		{"leverage-then-cross", func(ctx context.Context) error {
			if err := g.mirror.SetLeverage(ctx, g.contract, g.leverage); err != nil {
				return err
			}
			return g.mirror.ForceCrossMargin(ctx, g.contract)
		}},
		{"leverage-reset", func(ctx context.Context) error {
			if err := g.mirror.SetLeverage(ctx, g.contract, types.MinLeverage); err != nil {
				return err
			}
			if err := g.mirror.ForceCrossMargin(ctx, g.contract); err != nil {
				return err
			}
			return g.mirror.SetLeverage(ctx, g.contract, g.leverage)
		}},
		{"settle-and-force", func(ctx context.Context) error {
			if err := g.clock.Sleep(ctx, 2*time.Second); err != nil {
				return err
			}
			return g.mirror.ForceCrossMargin(ctx, g.contract)
		}},
	}

	for _, stage := range stages {
		coercionsTotal.WithLabelValues(stage.name).Inc()
		if err := stage.run(ctx); err != nil {
			g.logger.Warn("margin-coercion-stage-failed",
				zap.String("stage", stage.name), zap.Error(err))
			continue
		}
		mode, err := g.mirror.GetMarginMode(ctx, g.contract)
		if err != nil {
			continue
		}
		g.recordMode(mode)
		if mode == types.MarginModeCross {
			g.logger.Info("margin-mode-coerced", zap.String("stage", stage.name))
			return true
		}
	}
	return false
}

func (g *Guard) recordMode(mode types.MarginMode) {
	g.mu.Lock()
	g.lastMode = mode
	g.lastModeRead = g.clock.Now()
	g.mu.Unlock()
}

func (g *Guard) recordSuccess() {
	g.mu.Lock()
	g.failures = 0
	g.notified = false
	g.mu.Unlock()
}

func (g *Guard) recordFailure(ctx context.Context) {
	failuresTotal.Inc()
	if g.stats != nil {
		g.stats.MarginModeFailure()
	}
	g.mu.Lock()
	g.failures++
	shouldNotify := g.failures >= notifyAfterFailures && !g.notified
	if shouldNotify {
		g.notified = true
	}
	failures := g.failures
	g.mu.Unlock()

	if shouldNotify && g.notifier != nil {
		text := fmt.Sprintf("mirror account stuck outside cross-margin after %d checks on %s",
			failures, g.contract)
		if err := g.notifier.Send(ctx, "margin_mode", text); err != nil {
			g.logger.Warn("margin-notify-failed", zap.Error(err))
		}
	}
}

// LastMode returns the most recent margin-mode reading and when it was
// taken.
func (g *Guard) LastMode() (types.MarginMode, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastMode, g.lastModeRead
}

// Failures returns the consecutive-failure count.
func (g *Guard) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
