package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Venue payloads are open-ended maps with aliased field names that shift
// between API versions. TriggerOrderFromPayload enumerates every accepted
// alias and produces the normalized record the core operates on. Anything
// it cannot interpret is a schema mismatch, never a guess.

var (
	orderIDAliases   = []string{"order_id", "orderId", "id", "auto_order_id"}
	contractAliases  = []string{"contract", "symbol", "instrument", "market"}
	sideAliases      = []string{"side", "trade_side", "order_side", "direction"}
	triggerAliases   = []string{"trigger_price", "triggerPrice", "stop_price", "stopPrice", "activation_price"}
	sizeAliases      = []string{"size", "qty", "quantity", "amount", "contracts"}
	leverageAliases  = []string{"leverage", "lever", "leverage_e2"}
	tpAliases        = []string{"tp_price", "take_profit", "takeProfitPrice", "preset_take_profit"}
	slAliases        = []string{"sl_price", "stop_loss", "stopLossPrice", "preset_stop_loss"}
	createdAliases   = []string{"created_at", "create_time", "createTime", "ctime"}
	reduceAliases    = []string{"reduce_only", "reduceOnly", "is_reduce_only", "close"}
	sideValueByAlias = map[string]Side{
		"open_long":   SideOpenLong,
		"buy_open":    SideOpenLong,
		"long":        SideOpenLong,
		"open_short":  SideOpenShort,
		"sell_open":   SideOpenShort,
		"short":       SideOpenShort,
		"close_long":  SideCloseLong,
		"sell_close":  SideCloseLong,
		"close_short": SideCloseShort,
		"buy_close":   SideCloseShort,
	}
)

// TriggerOrderFromPayload normalizes a decoded venue payload into a
// TriggerOrder. venue is used only for error context.
func TriggerOrderFromPayload(venue string, payload map[string]any) (*TriggerOrder, error) {
	orderID, ok := firstString(payload, orderIDAliases)
	if !ok {
		return nil, fmt.Errorf("%s trigger payload: %w: no order id field", venue, ErrSchemaMismatch)
	}
	contract, ok := firstString(payload, contractAliases)
	if !ok {
		return nil, fmt.Errorf("%s trigger %s: %w: no contract field", venue, orderID, ErrSchemaMismatch)
	}
	trigger, ok := firstDecimal(payload, triggerAliases)
	if !ok || !trigger.IsPositive() {
		return nil, fmt.Errorf("%s trigger %s: %w: bad trigger price", venue, orderID, ErrSchemaMismatch)
	}
	size, ok := firstDecimal(payload, sizeAliases)
	if !ok {
		return nil, fmt.Errorf("%s trigger %s: %w: no size field", venue, orderID, ErrSchemaMismatch)
	}

	side, err := sideFromPayload(payload, size.IsNegative())
	if err != nil {
		return nil, fmt.Errorf("%s trigger %s: %w", venue, orderID, err)
	}

	lev := DefaultLeverage
	if d, ok := firstDecimal(payload, leverageAliases); ok {
		lev = ClampLeverage(int(d.IntPart()))
	}

	order := &TriggerOrder{
		OrderID:      orderID,
		Contract:     contract,
		Side:         side,
		TriggerPrice: trigger.InexactFloat64(),
		Size:         size.Abs().InexactFloat64(),
		Leverage:     lev,
	}
	if tp, ok := firstDecimal(payload, tpAliases); ok && tp.IsPositive() {
		order.TPPrice = tp.InexactFloat64()
	}
	if sl, ok := firstDecimal(payload, slAliases); ok && sl.IsPositive() {
		order.SLPrice = sl.InexactFloat64()
	}
	if ts, ok := firstDecimal(payload, createdAliases); ok {
		order.CreatedAt = timeFromEpoch(ts.IntPart())
	}

	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return order, nil
}

// sideFromPayload resolves the order side from the side aliases, falling
// back to the reduce-only flag combined with the sign of the size.
func sideFromPayload(payload map[string]any, negativeSize bool) (Side, error) {
	if raw, ok := firstString(payload, sideAliases); ok {
		if side, ok := sideValueByAlias[strings.ToLower(raw)]; ok {
			return side, nil
		}
		return "", fmt.Errorf("%w: unrecognized side %q", ErrSchemaMismatch, raw)
	}

	reduce := false
	for _, key := range reduceAliases {
		if v, ok := payload[key]; ok {
			if b, ok := v.(bool); ok {
				reduce = b
				break
			}
		}
	}
	switch {
	case reduce && negativeSize:
		return SideCloseLong, nil
	case reduce:
		return SideCloseShort, nil
	case negativeSize:
		return SideOpenShort, nil
	default:
		return SideOpenLong, nil
	}
}

func firstString(payload map[string]any, aliases []string) (string, bool) {
	for _, key := range aliases {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s, true
			}
		case float64:
			return decimal.NewFromFloat(s).String(), true
		}
	}
	return "", false
}

func firstDecimal(payload map[string]any, aliases []string) (decimal.Decimal, bool) {
	for _, key := range aliases {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case string:
			if n == "" {
				continue
			}
			d, err := decimal.NewFromString(n)
			if err == nil {
				return d, true
			}
		case float64:
			return decimal.NewFromFloat(n), true
		case int64:
			return decimal.NewFromInt(n), true
		}
	}
	return decimal.Zero, false
}

// timeFromEpoch accepts seconds or milliseconds since the epoch.
func timeFromEpoch(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v > 1e12 {
		return time.UnixMilli(v)
	}
	return time.Unix(v, 0)
}
