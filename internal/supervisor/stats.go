package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/mirror"
)

// reportHourLocal is the local hour the daily report is aligned to.
const reportHourLocal = 9

// StatsSnapshot is the operator-facing view of engine state.
type StatsSnapshot struct {
	Enabled bool    `json:"enabled"`
	Ratio   float64 `json:"ratio"`

	SourcePrice  float64 `json:"source_price"`
	MirrorPrice  float64 `json:"mirror_price"`
	PriceDiffAbs float64 `json:"price_diff_abs"`
	PricesValid  bool    `json:"prices_valid"`

	LiveRecords int `json:"live_records"`

	StartupSourceTriggers int `json:"startup_source_triggers"`
	StartupSourcePosCount int `json:"startup_source_positions"`
	StartupMirrorPosCount int `json:"startup_mirror_positions"`
	StartupMirrorHashes   int `json:"startup_mirror_hashes"`

	Counters mirror.Snapshot `json:"counters"`

	StartedAt time.Time `json:"started_at"`
}

// Snapshot assembles the operator stats view.
func (s *Supervisor) Snapshot() StatsSnapshot {
	prices := s.cfg.Prices.Prices()
	srcTrig, srcPos, mirPos, mirHashes := s.cfg.Startup.Cardinalities()

	return StatsSnapshot{
		Enabled:               s.cfg.Controller.Enabled(),
		Ratio:                 s.cfg.Controller.Ratio(),
		SourcePrice:           prices.Source,
		MirrorPrice:           prices.Mirror,
		PriceDiffAbs:          prices.DiffAbs,
		PricesValid:           prices.Valid,
		LiveRecords:           s.cfg.Records.Len(),
		StartupSourceTriggers: srcTrig,
		StartupSourcePosCount: srcPos,
		StartupMirrorPosCount: mirPos,
		StartupMirrorHashes:   mirHashes,
		Counters:              s.cfg.Stats.Snapshot(),
		StartedAt:             s.startedAt,
	}
}

// runDailyReport emits the counter summary at the aligned hour and
// resets the window.
func (s *Supervisor) runDailyReport(ctx context.Context) {
	defer s.wg.Done()
	for {
		wait := untilNextReport(s.cfg.Clock.Now())
		if err := s.cfg.Clock.Sleep(ctx, wait); err != nil {
			return
		}
		s.emitDailyReport(ctx)
	}
}

func (s *Supervisor) emitDailyReport(ctx context.Context) {
	snap := s.cfg.Stats.Snapshot()
	prices := s.cfg.Prices.Prices()
	reportID := uuid.NewString()

	text := fmt.Sprintf(
		"daily report %s: %d mirrored, %d failed, %d filled, %d canceled, %d forced cleanups, %d reconciler closes; src %.2f / mir %.2f; %d live records",
		reportID[:8], snap.SuccessfulMirrors, snap.FailedMirrors, snap.ImmediateFills,
		snap.Cancels, snap.ForcedCancelCleanups, snap.ReconcilerCloses,
		prices.Source, prices.Mirror, s.cfg.Records.Len())

	s.logger.Info("daily-report",
		zap.String("report-id", reportID),
		zap.Int64("successful-mirrors", snap.SuccessfulMirrors),
		zap.Int64("failed-mirrors", snap.FailedMirrors),
		zap.Int64("immediate-fills", snap.ImmediateFills),
		zap.Int64("cancels", snap.Cancels))

	if s.cfg.Notifier != nil {
		if err := s.cfg.Notifier.Send(ctx, "daily_report", text); err != nil {
			s.logger.Warn("daily-report-notify-failed", zap.Error(err))
		}
	}
	s.cfg.Stats.Reset()
}

// untilNextReport computes the wait to the next local report hour.
func untilNextReport(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), reportHourLocal, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
