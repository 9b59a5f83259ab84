// Package venue defines the external collaborator interfaces the
// reconciliation engine consumes: the source and mirror exchange clients,
// the notifier, and the clock. Concrete adapters live in subpackages.
package venue

import (
	"context"
	"time"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// SourceClient is the read-only facade over the observed venue.
type SourceClient interface {
	// GetTicker returns the latest 24h ticker for the configured contract.
	GetTicker(ctx context.Context) (*types.Ticker, error)

	// GetPositions returns open positions for the contract. Flat positions
	// are omitted.
	GetPositions(ctx context.Context, contract string) ([]*types.Position, error)

	// GetAccount returns the equity view used for margin-ratio computation.
	GetAccount(ctx context.Context) (*types.AccountSummary, error)

	// GetRecentFilledOrders returns orders filled within the last `minutes`
	// minutes for the contract.
	GetRecentFilledOrders(ctx context.Context, contract string, minutes int) ([]*types.FilledOrder, error)

	// GetAllTriggerOrders returns the union of plan and TP/SL trigger
	// orders for the contract, deduped by order ID.
	GetAllTriggerOrders(ctx context.Context, contract string) ([]*types.TriggerOrder, error)
}

// TriggerRequest is a trigger-order placement on the mirror venue.
type TriggerRequest struct {
	Contract     string
	Side         types.Side
	TriggerPrice float64
	Size         float64 // contracts
	ReduceOnly   bool
	TPPrice      float64 // 0 when absent
	SLPrice      float64 // 0 when absent
}

// TriggerResult reports a successful trigger placement. TPSLApplied is
// false when legs were requested but the venue did not accept them
// (partial success).
type TriggerResult struct {
	OrderID     string
	TPSLApplied bool
}

// MirrorClient is the facade over the replicating venue. It exposes the
// same reads as SourceClient plus margin-mode control and order placement.
type MirrorClient interface {
	SourceClient

	// GetMarginMode returns the margin mode for the contract.
	GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error)

	// ForceCrossMargin attempts to switch the contract to cross margin.
	ForceCrossMargin(ctx context.Context, contract string) error

	// SetLeverage sets the contract leverage.
	SetLeverage(ctx context.Context, contract string, leverage int) error

	// PlaceTrigger places a trigger order, with attached TP/SL when set.
	PlaceTrigger(ctx context.Context, req *TriggerRequest) (*TriggerResult, error)

	// CancelTrigger cancels a trigger order by ID. A missing order is a
	// types.VenueError with an idempotent code.
	CancelTrigger(ctx context.Context, orderID string) error

	// PlaceMarket places an immediate-or-cancel market order. Negative
	// size sells.
	PlaceMarket(ctx context.Context, contract string, size float64, reduceOnly bool) (string, error)

	// ClosePosition closes the whole position for the contract at market.
	ClosePosition(ctx context.Context, contract string) error
}

// Notifier delivers operator messages. Rate limiting is layered on top by
// the supervisor, not by implementations.
type Notifier interface {
	Send(ctx context.Context, category, text string) error
}

// CriticalSender is implemented by notifiers that can bypass the
// per-category rate limit. Invariant violations use it so they reach the
// operator even when the category budget is spent.
type CriticalSender interface {
	SendCritical(ctx context.Context, category, text string) error
}

// NotifyCritical routes through the bypass channel when the notifier
// supports one, falling back to a plain Send. A nil notifier is a no-op.
func NotifyCritical(ctx context.Context, n Notifier, category, text string) error {
	if n == nil {
		return nil
	}
	if c, ok := n.(CriticalSender); ok {
		return c.SendCritical(ctx, category, text)
	}
	return n.Send(ctx, category, text)
}

// Clock abstracts time so reconciliation waits are testable.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
