package binancesrc

import (
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// isTriggerType reports whether the Binance order type is conditional.
func isTriggerType(t futures.OrderType) bool {
	switch t {
	case futures.OrderTypeStop, futures.OrderTypeStopMarket,
		futures.OrderTypeTakeProfit, futures.OrderTypeTakeProfitMarket,
		futures.OrderTypeTrailingStopMarket:
		return true
	}
	return false
}

// triggerFromOrder normalizes a Binance conditional order. Binance does not
// attach TP/SL legs to a parent order, so those fields stay zero.
func triggerFromOrder(o *futures.Order, leverage int) (*types.TriggerOrder, error) {
	trigger := parseFloat(o.StopPrice)
	size := parseFloat(o.OrigQuantity)
	if trigger <= 0 {
		return nil, fmt.Errorf("order %d: %w: stop price %q", o.OrderID, types.ErrSchemaMismatch, o.StopPrice)
	}
	if size <= 0 {
		return nil, fmt.Errorf("order %d: %w: quantity %q", o.OrderID, types.ErrSchemaMismatch, o.OrigQuantity)
	}

	side, err := sideFromOrder(o)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", o.OrderID, err)
	}

	trig := &types.TriggerOrder{
		OrderID:      fmt.Sprintf("%d", o.OrderID),
		Contract:     o.Symbol,
		Side:         side,
		TriggerPrice: trigger,
		Size:         size,
		Leverage:     types.ClampLeverage(leverage),
		CreatedAt:    time.UnixMilli(o.Time),
	}
	if err := trig.Validate(); err != nil {
		return nil, err
	}
	return trig, nil
}

// sideFromOrder maps Binance BUY/SELL plus reduce-only semantics onto the
// four-way side. ClosePosition orders and TP/SL order types are closes.
func sideFromOrder(o *futures.Order) (types.Side, error) {
	closing := o.ReduceOnly || o.ClosePosition ||
		o.Type == futures.OrderTypeTakeProfit || o.Type == futures.OrderTypeTakeProfitMarket

	switch o.Side {
	case futures.SideTypeBuy:
		if closing {
			return types.SideCloseShort, nil
		}
		return types.SideOpenLong, nil
	case futures.SideTypeSell:
		if closing {
			return types.SideCloseLong, nil
		}
		return types.SideOpenShort, nil
	}
	return "", fmt.Errorf("%w: side %q", types.ErrSchemaMismatch, o.Side)
}

// positionFromRisk maps a position-risk row. A zero position amount means
// flat and returns nil.
func positionFromRisk(r *futures.PositionRisk) (*types.Position, error) {
	amt, err := decimal.NewFromString(r.PositionAmt)
	if err != nil {
		return nil, fmt.Errorf("position %s: %w: amount %q", r.Symbol, types.ErrSchemaMismatch, r.PositionAmt)
	}
	if amt.IsZero() {
		return nil, nil
	}

	direction := types.DirectionLong
	if amt.IsNegative() {
		direction = types.DirectionShort
	}

	lev := types.DefaultLeverage
	if d, err := decimal.NewFromString(r.Leverage); err == nil {
		lev = types.ClampLeverage(int(d.IntPart()))
	}

	return &types.Position{
		Contract:         r.Symbol,
		Direction:        direction,
		Size:             amt.Abs().InexactFloat64(),
		EntryPrice:       parseFloat(r.EntryPrice),
		Leverage:         lev,
		LiquidationPrice: parseFloat(r.LiquidationPrice),
	}, nil
}

// parseFloat converts a venue decimal string, treating garbage as zero.
// Callers validate ranges on the normalized record.
func parseFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
