// Package storage persists the audit trail: mirror lifecycle events and
// ratio changes. Persistence is advisory; the engine stays correct
// without it, so every writer failure is logged and swallowed upstream.
package storage

import (
	"context"
	"time"
)

// EventKind classifies a mirror lifecycle event.
type EventKind string

const (
	EventPlaced        EventKind = "placed"
	EventCanceled      EventKind = "canceled"
	EventFilled        EventKind = "filled"
	EventForceCleanup  EventKind = "force_cleanup"
	EventPositionClose EventKind = "position_close"
)

// MirrorEvent is one audit row for a mirrored order.
type MirrorEvent struct {
	Kind          EventKind
	SourceOrderID string
	MirrorOrderID string
	Contract      string
	Side          string
	TriggerPrice  float64
	Contracts     int64
	FinalRatio    float64
	Detail        string
	At            time.Time
}

// RatioAudit is one audit row for an operator ratio change.
type RatioAudit struct {
	Old      float64
	New      float64
	By       string
	DeltaPct float64
	At       time.Time
}

// Store is the audit sink.
type Store interface {
	RecordEvent(ctx context.Context, ev *MirrorEvent) error
	RecordRatioChange(ctx context.Context, ra *RatioAudit) error
	Close() error
}
