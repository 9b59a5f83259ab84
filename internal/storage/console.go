package storage

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleStore implements Store by writing structured log lines. It is
// the default sink when no database is configured.
type ConsoleStore struct {
	logger *zap.Logger
}

// NewConsoleStore creates a console-backed audit sink.
func NewConsoleStore(logger *zap.Logger) *ConsoleStore {
	logger.Info("console-storage-initialized")
	return &ConsoleStore{logger: logger.Named("audit")}
}

func (c *ConsoleStore) RecordEvent(ctx context.Context, ev *MirrorEvent) error {
	c.logger.Info("mirror-event",
		zap.String("kind", string(ev.Kind)),
		zap.String("source_order_id", ev.SourceOrderID),
		zap.String("mirror_order_id", ev.MirrorOrderID),
		zap.String("contract", ev.Contract),
		zap.String("side", ev.Side),
		zap.Float64("trigger", ev.TriggerPrice),
		zap.Int64("contracts", ev.Contracts),
		zap.Float64("final_ratio", ev.FinalRatio),
		zap.String("detail", ev.Detail),
		zap.Time("at", ev.At))
	return nil
}

func (c *ConsoleStore) RecordRatioChange(ctx context.Context, ra *RatioAudit) error {
	c.logger.Info("ratio-audit",
		zap.Float64("old", ra.Old),
		zap.Float64("new", ra.New),
		zap.String("by", ra.By),
		zap.Float64("delta_pct", ra.DeltaPct),
		zap.Time("at", ra.At))
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStore) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
