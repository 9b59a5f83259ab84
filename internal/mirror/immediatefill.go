package mirror

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/pricetracker"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

const (
	marketRetryAttempts = 3
	marketRetryBackoff  = 2 * time.Second

	// backupTriggerOffset places the fallback trigger this many USD on
	// the firing side of the current mirror price.
	backupTriggerOffset = 50.0
)

// FillerConfig wires the immediate-fill executor.
type FillerConfig struct {
	Mirror   venue.MirrorClient
	Guard    *marginguard.Guard
	Prices   *pricetracker.Tracker
	Clock    venue.Clock
	Notifier venue.Notifier

	Records *Records
	Locks   *KeyedLocks
	Stats   *Stats

	MirrorContract string
	Logger         *zap.Logger
}

// Filler converts a filled source order into an immediate mirror fill:
// cancel the pending mirror trigger, then market-execute its size.
type Filler struct {
	mirror   venue.MirrorClient
	guard    *marginguard.Guard
	prices   *pricetracker.Tracker
	clock    venue.Clock
	notifier venue.Notifier

	records *Records
	locks   *KeyedLocks
	stats   *Stats

	mirrorContract string
	logger         *zap.Logger
}

func NewFiller(cfg *FillerConfig) *Filler {
	return &Filler{
		mirror:         cfg.Mirror,
		guard:          cfg.Guard,
		prices:         cfg.Prices,
		clock:          cfg.Clock,
		notifier:       cfg.Notifier,
		records:        cfg.Records,
		locks:          cfg.Locks,
		stats:          cfg.Stats,
		mirrorContract: cfg.MirrorContract,
		logger:         cfg.Logger.Named("filler"),
	}
}

// Execute market-fills the mirror side of a filled source order. A
// duplicate handoff while an attempt is in flight is coalesced into a
// no-op; the running attempt covers it.
func (f *Filler) Execute(ctx context.Context, sourceOrderID string) error {
	rec, ok := f.records.BySource(sourceOrderID)
	if !ok {
		return nil
	}

	release, acquired := f.locks.TryAcquire("fill:" + rec.MirrorOrderID)
	if !acquired {
		immediateFillsTotal.WithLabelValues("coalesced").Inc()
		return nil
	}
	defer release()

	// Re-check under the lock; the previous holder may have finished it.
	if _, ok := f.records.BySource(sourceOrderID); !ok {
		return nil
	}

	f.guard.Ensure(ctx)

	if err := f.mirror.CancelTrigger(ctx, rec.MirrorOrderID); err != nil && !types.IsIdempotentVenueError(err) {
		// The trigger may have fired on its own; a live position then
		// makes the market order redundant, but placing it reduce-only
		// aware keeps the outcome safe. Log and continue.
		f.logger.Warn("immediate-fill-cancel-failed",
			zap.String("mirror_order_id", rec.MirrorOrderID), zap.Error(err))
	}

	size, err := f.executableSize(ctx, rec)
	if err != nil {
		f.finishFailed(ctx, rec, err)
		return err
	}
	if size == 0 {
		// Reduce-only with nothing to reduce: the position is already
		// gone, so the fill is moot.
		f.records.Remove(sourceOrderID)
		immediateFillsTotal.WithLabelValues("noop").Inc()
		return nil
	}

	if err := f.marketWithRetry(ctx, rec, size); err != nil {
		if berr := f.backupFill(ctx, rec, size); berr != nil {
			f.finishFailed(ctx, rec, fmt.Errorf("backup fill: %w", berr))
			return berr
		}
	}

	f.records.Remove(sourceOrderID)
	immediateFillsTotal.WithLabelValues("filled").Inc()
	f.stats.ImmediateFill()
	f.logger.Info("immediate-fill-executed",
		zap.String("source_order_id", sourceOrderID),
		zap.String("mirror_order_id", rec.MirrorOrderID),
		zap.Float64("size", size))
	return nil
}

// executableSize derives the signed market size from the record. For
// reduce-only orders it is clamped to the live position in the matching
// direction; zero means nothing remains to close.
func (f *Filler) executableSize(ctx context.Context, rec *Record) (float64, error) {
	signed := float64(rec.Contracts)
	switch rec.Source.Side {
	case types.SideOpenShort, types.SideCloseLong:
		signed = -signed
	}
	if !rec.Source.Side.IsClose() {
		return signed, nil
	}

	positions, err := f.mirror.GetPositions(ctx, f.mirrorContract)
	if err != nil {
		return 0, fmt.Errorf("mirror positions: %w", err)
	}
	want := types.DirectionLong
	if rec.Source.Side == types.SideCloseShort {
		want = types.DirectionShort
	}
	for _, pos := range positions {
		if pos == nil || pos.Flat() || pos.Direction != want {
			continue
		}
		if pos.Size < float64(rec.Contracts) {
			if signed < 0 {
				return -pos.Size, nil
			}
			return pos.Size, nil
		}
		return signed, nil
	}
	return 0, nil
}

func (f *Filler) marketWithRetry(ctx context.Context, rec *Record, size float64) error {
	reduceOnly := rec.Source.Side.IsClose()
	var lastErr error
	for attempt := 1; attempt <= marketRetryAttempts; attempt++ {
		_, err := f.mirror.PlaceMarket(ctx, f.mirrorContract, size, reduceOnly)
		if err == nil {
			return nil
		}
		lastErr = err
		f.logger.Warn("immediate-fill-market-failed",
			zap.String("mirror_order_id", rec.MirrorOrderID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < marketRetryAttempts {
			if err := f.clock.Sleep(ctx, marketRetryBackoff); err != nil {
				return err
			}
		}
	}
	return &types.OperationFailed{Category: "immediate_fill", Err: lastErr}
}

// backupFill is the two-stage fallback after market retries are
// exhausted: first a fresh trigger placed just on the firing side of the
// current mirror price, then one unconditional market attempt. Each stage
// runs at most once per decision.
func (f *Filler) backupFill(ctx context.Context, rec *Record, size float64) error {
	reduceOnly := rec.Source.Side.IsClose()

	prices := f.prices.Prices()
	if prices.Valid {
		// Buy intent fires on a drop to the trigger, so a trigger above
		// the market fires at once; sell intent is symmetric.
		trigger := prices.Mirror + backupTriggerOffset
		if rec.Source.Side == types.SideOpenShort || rec.Source.Side == types.SideCloseLong {
			trigger = prices.Mirror - backupTriggerOffset
		}
		backupFillsTotal.WithLabelValues("smart_trigger").Inc()
		_, err := f.mirror.PlaceTrigger(ctx, &venue.TriggerRequest{
			Contract:     f.mirrorContract,
			Side:         rec.Source.Side,
			TriggerPrice: trigger,
			Size:         abs(size),
			ReduceOnly:   reduceOnly,
		})
		if err == nil {
			f.stats.BackupFill()
			f.logger.Info("backup-trigger-placed",
				zap.String("mirror_order_id", rec.MirrorOrderID),
				zap.Float64("trigger", trigger))
			return nil
		}
		f.logger.Warn("backup-trigger-failed",
			zap.String("mirror_order_id", rec.MirrorOrderID), zap.Error(err))
	}

	backupFillsTotal.WithLabelValues("unconditional_market").Inc()
	if _, err := f.mirror.PlaceMarket(ctx, f.mirrorContract, size, reduceOnly); err != nil {
		return err
	}
	f.stats.BackupFill()
	return nil
}

func (f *Filler) finishFailed(ctx context.Context, rec *Record, err error) {
	immediateFillsTotal.WithLabelValues("failed").Inc()
	f.stats.ImmediateFillFailed(err)
	f.logger.Error("immediate-fill-failed",
		zap.String("source_order_id", rec.SourceOrderID),
		zap.String("mirror_order_id", rec.MirrorOrderID),
		zap.Error(err))
	if f.notifier != nil {
		text := fmt.Sprintf("immediate fill failed for %s (%s): %v",
			rec.SourceOrderID, rec.Source.Side, err)
		if nerr := f.notifier.Send(ctx, "immediate_fill", text); nerr != nil {
			f.logger.Warn("immediate-fill-notify-failed", zap.Error(nerr))
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
