// Package types defines the domain model shared by the mirroring engine:
// trigger orders, positions, account summaries, tickers, and the error
// taxonomy used by the venue adapters and reconciliation loops.
package types

import (
	"fmt"
	"time"
)

// Side classifies a trigger order by intent. Close sides imply reduce-only.
type Side string

const (
	SideOpenLong   Side = "open_long"
	SideOpenShort  Side = "open_short"
	SideCloseLong  Side = "close_long"
	SideCloseShort Side = "close_short"
)

// IsClose reports whether the side reduces an existing position.
func (s Side) IsClose() bool {
	return s == SideCloseLong || s == SideCloseShort
}

// IsLong reports whether the side acts on the long direction of the book.
// open_long buys, close_short buys; both sit below price for trigger intent.
func (s Side) IsLong() bool {
	return s == SideOpenLong || s == SideCloseLong
}

// Valid reports whether the side is one of the four recognized values.
func (s Side) Valid() bool {
	switch s {
	case SideOpenLong, SideOpenShort, SideCloseLong, SideCloseShort:
		return true
	}
	return false
}

// TriggerOrder is a conditional order on either venue, normalized by the
// adapters so the core never sees raw venue payloads.
type TriggerOrder struct {
	OrderID      string
	Contract     string
	Side         Side
	TriggerPrice float64
	Size         float64
	Leverage     int
	TPPrice      float64 // 0 when absent
	SLPrice      float64 // 0 when absent
	CreatedAt    time.Time
}

// HasTPSL reports whether either attached leg is present.
func (o *TriggerOrder) HasTPSL() bool {
	return o.TPPrice > 0 || o.SLPrice > 0
}

// ReduceOnly is derived from the side; close-side orders may only shrink
// an existing position.
func (o *TriggerOrder) ReduceOnly() bool {
	return o.Side.IsClose()
}

// Validate checks the invariants the data model guarantees to the core.
func (o *TriggerOrder) Validate() error {
	if o.OrderID == "" {
		return fmt.Errorf("trigger order: %w: empty order id", ErrInvariantViolation)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("trigger order %s: %w: side %q", o.OrderID, ErrInvariantViolation, o.Side)
	}
	if o.TriggerPrice <= 0 {
		return fmt.Errorf("trigger order %s: %w: trigger price %f", o.OrderID, ErrInvariantViolation, o.TriggerPrice)
	}
	if o.Size <= 0 {
		return fmt.Errorf("trigger order %s: %w: size %f", o.OrderID, ErrInvariantViolation, o.Size)
	}
	if o.Leverage < 1 || o.Leverage > MaxLeverage {
		return fmt.Errorf("trigger order %s: %w: leverage %d", o.OrderID, ErrInvariantViolation, o.Leverage)
	}
	if o.TPPrice > 0 && o.SLPrice > 0 {
		// For a long: sl < trigger < tp. Symmetric for a short.
		longOK := o.SLPrice < o.TriggerPrice && o.TriggerPrice < o.TPPrice
		shortOK := o.TPPrice < o.TriggerPrice && o.TriggerPrice < o.SLPrice
		if o.Side.IsLong() && !longOK {
			return fmt.Errorf("trigger order %s: %w: tp/sl ordering for long", o.OrderID, ErrInvariantViolation)
		}
		if !o.Side.IsLong() && !shortOK {
			return fmt.Errorf("trigger order %s: %w: tp/sl ordering for short", o.OrderID, ErrInvariantViolation)
		}
	}
	return nil
}

// Leverage bounds recognized across venues.
const (
	MinLeverage     = 1
	MaxLeverage     = 125
	DefaultLeverage = 30
)

// ClampLeverage forces a leverage reading into the recognized range,
// falling back to the default when the reading is unusable.
func ClampLeverage(lev int) int {
	if lev == 0 {
		return DefaultLeverage
	}
	if lev < MinLeverage {
		return MinLeverage
	}
	if lev > MaxLeverage {
		return MaxLeverage
	}
	return lev
}
