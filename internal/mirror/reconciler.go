package mirror

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/storage"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// ReconcilerConfig wires the position reconciler.
type ReconcilerConfig struct {
	Source   venue.SourceClient
	Mirror   venue.MirrorClient
	Guard    *marginguard.Guard
	Notifier venue.Notifier

	Startup *StartupSet
	Stats   *Stats

	// Store receives position-close audit rows; nil disables persistence.
	Store storage.Store

	SourceContract string
	MirrorContract string
	Logger         *zap.Logger
}

// Reconciler closes mirror positions that no longer correspond to source
// state: orphans (source flat) and direction mismatches. It never opens
// positions.
type Reconciler struct {
	source   venue.SourceClient
	mirror   venue.MirrorClient
	guard    *marginguard.Guard
	notifier venue.Notifier

	startup *StartupSet
	stats   *Stats
	store   storage.Store

	sourceContract string
	mirrorContract string
	logger         *zap.Logger
}

func NewReconciler(cfg *ReconcilerConfig) *Reconciler {
	return &Reconciler{
		source:         cfg.Source,
		mirror:         cfg.Mirror,
		guard:          cfg.Guard,
		notifier:       cfg.Notifier,
		startup:        cfg.Startup,
		stats:          cfg.Stats,
		store:          cfg.Store,
		sourceContract: cfg.SourceContract,
		mirrorContract: cfg.MirrorContract,
		logger:         cfg.Logger.Named("reconciler"),
	}
}

// Sync compares positions on both venues and closes offending mirror
// positions. Startup positions are exempt.
func (r *Reconciler) Sync(ctx context.Context) error {
	sourcePositions, err := r.source.GetPositions(ctx, r.sourceContract)
	if err != nil {
		return fmt.Errorf("source positions: %w", err)
	}
	mirrorPositions, err := r.mirror.GetPositions(ctx, r.mirrorContract)
	if err != nil {
		return fmt.Errorf("mirror positions: %w", err)
	}

	sourceByDir := make(map[types.Direction]*types.Position)
	for _, p := range sourcePositions {
		if p != nil && !p.Flat() {
			sourceByDir[p.Direction] = p
		}
	}

	for _, pos := range mirrorPositions {
		if pos == nil || pos.Flat() {
			continue
		}
		if r.startup.HasMirrorPosition(pos.Direction) {
			continue
		}

		if len(sourceByDir) == 0 {
			r.close(ctx, pos, "orphan")
			continue
		}
		if _, sameDir := sourceByDir[pos.Direction]; sameDir {
			continue
		}
		if _, opposite := sourceByDir[pos.Direction.Opposite()]; opposite {
			r.close(ctx, pos, "direction_mismatch")
		}
	}
	return nil
}

func (r *Reconciler) close(ctx context.Context, pos *types.Position, reason string) {
	r.guard.Ensure(ctx)

	if err := r.mirror.ClosePosition(ctx, r.mirrorContract); err != nil {
		r.logger.Error("reconciler-close-failed",
			zap.String("reason", reason),
			zap.String("direction", string(pos.Direction)),
			zap.Float64("size", pos.Size),
			zap.Error(err))
		return
	}

	reconcilerClosesTotal.WithLabelValues(reason).Inc()
	r.stats.ReconcilerClose()
	r.logger.Warn("mirror-position-closed",
		zap.String("reason", reason),
		zap.String("direction", string(pos.Direction)),
		zap.Float64("size", pos.Size))

	if r.notifier != nil {
		text := fmt.Sprintf("closed %s mirror position (%.0f contracts): %s",
			pos.Direction, pos.Size, reason)
		var err error
		if reason == "direction_mismatch" {
			// An inverted position means a placement went through with the
			// wrong side; that must reach the operator regardless of the
			// category budget.
			err = venue.NotifyCritical(ctx, r.notifier, "reconciler", text)
		} else {
			err = r.notifier.Send(ctx, "reconciler", text)
		}
		if err != nil {
			r.logger.Warn("reconciler-notify-failed", zap.Error(err))
		}
	}

	if r.store != nil {
		ev := &storage.MirrorEvent{
			Kind:     storage.EventPositionClose,
			Contract: r.mirrorContract,
			Side:     string(pos.Direction),
			Detail:   reason,
			At:       time.Now(),
		}
		if err := r.store.RecordEvent(ctx, ev); err != nil {
			r.logger.Warn("position-close-audit-failed", zap.Error(err))
		}
	}
}
