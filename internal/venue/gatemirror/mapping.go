package gatemirror

import (
	"errors"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// signedContracts converts an unsigned contract count into the venue's
// signed convention: buys positive, sells negative. Opening a long and
// closing a short both buy; opening a short and closing a long both sell.
func signedContracts(side types.Side, size float64) int64 {
	contracts := int64(size)
	if contracts < 1 {
		contracts = 1
	}
	switch side {
	case types.SideOpenLong, types.SideCloseShort:
		return contracts
	default:
		return -contracts
	}
}

// triggerRuleFor picks the venue trigger comparison. Buy-side intent
// triggers when the price falls to the trigger (rule 2, <=); sell-side
// intent triggers on a rise (rule 1, >=).
func triggerRuleFor(side types.Side) int {
	switch side {
	case types.SideOpenLong, types.SideCloseShort:
		return 2
	default:
		return 1
	}
}

func positionFromPayload(p *positionPayload) *types.Position {
	if p == nil || p.Size == 0 {
		return nil
	}
	direction := types.DirectionLong
	if p.Size < 0 {
		direction = types.DirectionShort
	}
	lev := types.DefaultLeverage
	if p.Leverage != "" && p.Leverage != "0" {
		if v, err := strconv.Atoi(p.Leverage); err == nil {
			lev = types.ClampLeverage(v)
		}
	}
	return &types.Position{
		Contract:         p.Contract,
		Direction:        direction,
		Size:             float64(abs64(p.Size)),
		EntryPrice:       parseFloat(p.EntryPrice),
		Leverage:         lev,
		LiquidationPrice: parseFloat(p.LiqPrice),
	}
}

func isPositionNotFound(err error) bool {
	var ve *types.VenueError
	return errors.As(err, &ve) && ve.Code == "POSITION_NOT_FOUND"
}

func parseFloat(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).Round(2).String()
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
