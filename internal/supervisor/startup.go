package supervisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/mirror"
	"github.com/mirrordesk/perp-mirror/internal/orderhash"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

const (
	replayAttempts = 3
	replayBackoff  = 10 * time.Second

	// pairingTolerance matches a source trigger to an existing mirror
	// trigger when their prices are this close. Matched pairs are
	// startup state; unmatched source triggers get replayed.
	pairingTolerance = 200.0
)

// initStartupState reads both venues and rebuilds the startup snapshot.
// Source triggers that already have a mirror counterpart become startup
// pairs; the rest are queued for replay.
func (s *Supervisor) initStartupState(ctx context.Context) error {
	sourceTriggers, err := s.cfg.Source.GetAllTriggerOrders(ctx, s.cfg.SourceContract)
	if err != nil {
		return fmt.Errorf("source triggers: %w", err)
	}
	sourcePositions, err := s.cfg.Source.GetPositions(ctx, s.cfg.SourceContract)
	if err != nil {
		return fmt.Errorf("source positions: %w", err)
	}
	mirrorTriggers, err := s.cfg.Mirror.GetAllTriggerOrders(ctx, s.cfg.MirrorContract)
	if err != nil {
		return fmt.Errorf("mirror triggers: %w", err)
	}
	mirrorPositions, err := s.cfg.Mirror.GetPositions(ctx, s.cfg.MirrorContract)
	if err != nil {
		return fmt.Errorf("mirror positions: %w", err)
	}

	matched, unmatched := pairTriggers(sourceTriggers, mirrorTriggers)

	var sourceHashes, mirrorHashes []string
	for _, o := range matched {
		sourceHashes = append(sourceHashes, s.variants(o)...)
	}
	for _, o := range mirrorTriggers {
		mirrorHashes = append(mirrorHashes, s.variants(o)...)
	}

	s.cfg.Startup.Reset(&mirror.StartupInputs{
		SourceTriggers:      matched,
		SourcePositions:     sourcePositions,
		MirrorPositions:     mirrorPositions,
		SourceTriggerHashes: sourceHashes,
		MirrorTriggerHashes: mirrorHashes,
	})

	s.mu.Lock()
	s.replayQueue = unmatched
	s.mu.Unlock()

	s.logger.Info("startup-state-built",
		zap.Int("source-triggers", len(sourceTriggers)),
		zap.Int("startup-pairs", len(matched)),
		zap.Int("replay-candidates", len(unmatched)),
		zap.Int("mirror-triggers", len(mirrorTriggers)),
		zap.Int("mirror-positions", len(mirrorPositions)))
	return nil
}

// replayPreexisting mirrors source triggers that existed at init without
// a mirror counterpart, retrying each batch with back-off. Failures are
// dropped after the attempts; the orders stay live on the source and a
// later restart retries them.
func (s *Supervisor) replayPreexisting(ctx context.Context) {
	s.mu.Lock()
	queue := s.replayQueue
	s.replayQueue = nil
	s.mu.Unlock()
	if len(queue) == 0 {
		return
	}

	for attempt := 1; attempt <= replayAttempts; attempt++ {
		var failed []*types.TriggerOrder
		for _, order := range queue {
			if err := s.cfg.Placer.Place(ctx, order); err != nil {
				failed = append(failed, order)
			}
		}
		if len(failed) == 0 {
			return
		}
		queue = failed
		s.logger.Warn("startup-replay-retry",
			zap.Int("attempt", attempt),
			zap.Int("remaining", len(queue)))
		if attempt < replayAttempts {
			if err := s.cfg.Clock.Sleep(ctx, replayBackoff); err != nil {
				return
			}
		}
	}
	s.logger.Error("startup-replay-gave-up", zap.Int("orders", len(queue)))
}

// Reinitialize is the off-to-on hook: margin check, price refresh, and a
// fresh startup snapshot. Idempotent by construction.
func (s *Supervisor) Reinitialize(ctx context.Context) {
	s.cfg.Guard.Ensure(ctx)
	s.cfg.Prices.Refresh(ctx)
	if err := s.initStartupState(ctx); err != nil {
		s.logger.Error("reinitialize-failed", zap.Error(err))
		return
	}
	s.replayPreexisting(ctx)
	s.logger.Info("reinitialized")
}

func (s *Supervisor) variants(o *types.TriggerOrder) []string {
	return s.cfg.Scheme.Variants(orderhash.Order{
		Contract:     o.Contract,
		TriggerPrice: o.TriggerPrice,
		Size:         o.Size,
		TPPrice:      o.TPPrice,
		SLPrice:      o.SLPrice,
	})
}

// pairTriggers matches source triggers to mirror triggers by side and
// trigger-price proximity. Sizes and contract symbols differ across
// venues, so price is the only stable pairing key.
func pairTriggers(source, mirrorOrders []*types.TriggerOrder) (matched, unmatched []*types.TriggerOrder) {
	used := make(map[int]bool, len(mirrorOrders))
	for _, src := range source {
		found := false
		for i, mir := range mirrorOrders {
			if used[i] || mir.Side != src.Side {
				continue
			}
			if math.Abs(mir.TriggerPrice-src.TriggerPrice) <= pairingTolerance {
				used[i] = true
				found = true
				break
			}
		}
		if found {
			matched = append(matched, src)
		} else {
			unmatched = append(unmatched, src)
		}
	}
	return matched, unmatched
}
