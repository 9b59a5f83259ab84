package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/marginguard"
	"github.com/mirrordesk/perp-mirror/internal/storage"
	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

const (
	cancelVerifyDelay = 2 * time.Second

	// forceCleanupRetries is where the operator is warned that a cancel
	// keeps failing. The record stays live so the retry loop continues
	// driving attempts toward the blind-cancel stage.
	forceCleanupRetries = 5

	// blindCancelRetries fires one last unverified cancel, wipes every
	// trace of the order, and counts the forced cleanup.
	blindCancelRetries = 10
)

// SyncerConfig wires the cancel synchronizer.
type SyncerConfig struct {
	Mirror   venue.MirrorClient
	Guard    *marginguard.Guard
	Clock    venue.Clock
	Notifier venue.Notifier

	Records *Records
	Stats   *Stats

	// Store receives force-cleanup audit rows; nil disables persistence.
	Store storage.Store

	MirrorContract string
	Logger         *zap.Logger
}

// Syncer cancels the mirror counterpart of a canceled source order.
type Syncer struct {
	mirror   venue.MirrorClient
	guard    *marginguard.Guard
	clock    venue.Clock
	notifier venue.Notifier

	records *Records
	stats   *Stats
	store   storage.Store

	mirrorContract string
	logger         *zap.Logger

	mu         sync.Mutex
	retryCount map[string]int
	notifiedAt map[string]struct{}
}

func NewSyncer(cfg *SyncerConfig) *Syncer {
	return &Syncer{
		mirror:         cfg.Mirror,
		guard:          cfg.Guard,
		clock:          cfg.Clock,
		notifier:       cfg.Notifier,
		records:        cfg.Records,
		stats:          cfg.Stats,
		store:          cfg.Store,
		mirrorContract: cfg.MirrorContract,
		logger:         cfg.Logger.Named("cancel-syncer"),
	}
}

// Cancel removes the mirror counterpart of a canceled source order. A
// missing record or an already-gone mirror trigger is success.
func (s *Syncer) Cancel(ctx context.Context, sourceOrderID string) error {
	rec, ok := s.records.BySource(sourceOrderID)
	if !ok {
		s.resetRetries(sourceOrderID)
		return nil
	}

	s.guard.Ensure(ctx)

	live, err := s.mirrorOrderLive(ctx, rec.MirrorOrderID)
	if err != nil {
		s.logger.Warn("cancel-live-check-failed",
			zap.String("mirror_order_id", rec.MirrorOrderID), zap.Error(err))
		// Fall through to the cancel attempt; an idempotent error there
		// resolves the doubt.
	} else if !live {
		s.finishCanceled(sourceOrderID, rec)
		return nil
	}

	if err := s.mirror.CancelTrigger(ctx, rec.MirrorOrderID); err != nil {
		if types.IsIdempotentVenueError(err) {
			s.finishCanceled(sourceOrderID, rec)
			return nil
		}
		return s.recordRetry(ctx, sourceOrderID, rec, err)
	}

	if err := s.clock.Sleep(ctx, cancelVerifyDelay); err != nil {
		return err
	}
	live, err = s.mirrorOrderLive(ctx, rec.MirrorOrderID)
	if err == nil && live {
		return s.recordRetry(ctx, sourceOrderID, rec,
			fmt.Errorf("mirror order %s still live after cancel", rec.MirrorOrderID))
	}

	s.finishCanceled(sourceOrderID, rec)
	return nil
}

// Retries reports the retry count for a source order.
func (s *Syncer) Retries(sourceOrderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount[sourceOrderID]
}

func (s *Syncer) mirrorOrderLive(ctx context.Context, mirrorOrderID string) (bool, error) {
	triggers, err := s.mirror.GetAllTriggerOrders(ctx, s.mirrorContract)
	if err != nil {
		return false, err
	}
	for _, o := range triggers {
		if o.OrderID == mirrorOrderID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Syncer) finishCanceled(sourceOrderID string, rec *Record) {
	s.records.Remove(sourceOrderID)
	s.resetRetries(sourceOrderID)
	cancelsTotal.WithLabelValues("canceled").Inc()
	s.stats.Cancel()
	s.logger.Info("mirror-order-canceled",
		zap.String("source_order_id", sourceOrderID),
		zap.String("mirror_order_id", rec.MirrorOrderID))
}

func (s *Syncer) recordRetry(ctx context.Context, sourceOrderID string, rec *Record, cause error) error {
	s.mu.Lock()
	if s.retryCount == nil {
		s.retryCount = make(map[string]int)
	}
	s.retryCount[sourceOrderID]++
	count := s.retryCount[sourceOrderID]
	s.mu.Unlock()

	cancelsTotal.WithLabelValues("retry").Inc()
	s.stats.CancelFailed()
	s.logger.Warn("mirror-cancel-retry",
		zap.String("source_order_id", sourceOrderID),
		zap.Int("retries", count),
		zap.Error(cause))

	if count >= blindCancelRetries {
		// Last resort: fire one unverified cancel and wipe the mapping.
		if err := s.mirror.CancelTrigger(ctx, rec.MirrorOrderID); err != nil && !types.IsIdempotentVenueError(err) {
			s.logger.Error("blind-cancel-failed",
				zap.String("mirror_order_id", rec.MirrorOrderID), zap.Error(err))
		}
		s.records.Remove(sourceOrderID)
		s.resetRetries(sourceOrderID)
		forcedCancelCleanupsTotal.Inc()
		s.stats.ForcedCancelCleanup()
		s.auditForcedCleanup(ctx, sourceOrderID, rec, cause)
		s.logger.Error("mirror-cancel-abandoned",
			zap.String("source_order_id", sourceOrderID),
			zap.String("mirror_order_id", rec.MirrorOrderID))
		return cause
	}

	if count >= forceCleanupRetries {
		s.notifyForcedCleanup(ctx, sourceOrderID, rec, count)
	}
	return cause
}

func (s *Syncer) auditForcedCleanup(ctx context.Context, sourceOrderID string, rec *Record, cause error) {
	if s.store == nil {
		return
	}
	ev := &storage.MirrorEvent{
		Kind:          storage.EventForceCleanup,
		SourceOrderID: sourceOrderID,
		MirrorOrderID: rec.MirrorOrderID,
		Contract:      s.mirrorContract,
		TriggerPrice:  rec.AdjustedTriggerPrice,
		Contracts:     rec.Contracts,
		FinalRatio:    rec.FinalMarginRatio,
		Detail:        cause.Error(),
		At:            s.clock.Now(),
	}
	if err := s.store.RecordEvent(ctx, ev); err != nil {
		s.logger.Warn("forced-cleanup-audit-failed", zap.Error(err))
	}
}

func (s *Syncer) notifyForcedCleanup(ctx context.Context, sourceOrderID string, rec *Record, count int) {
	s.mu.Lock()
	if s.notifiedAt == nil {
		s.notifiedAt = make(map[string]struct{})
	}
	if _, done := s.notifiedAt[sourceOrderID]; done {
		s.mu.Unlock()
		return
	}
	s.notifiedAt[sourceOrderID] = struct{}{}
	s.mu.Unlock()

	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("mirror cancel for %s keeps failing (%d attempts); order %s is still live and will be abandoned after %d",
		sourceOrderID, count, rec.MirrorOrderID, blindCancelRetries)
	if err := s.notifier.Send(ctx, "forced_cancel", text); err != nil {
		s.logger.Warn("forced-cancel-notify-failed", zap.Error(err))
	}
}

func (s *Syncer) resetRetries(sourceOrderID string) {
	s.mu.Lock()
	delete(s.retryCount, sourceOrderID)
	delete(s.notifiedAt, sourceOrderID)
	s.mu.Unlock()
}
