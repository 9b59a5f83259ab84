package binancesrc

import (
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

func TestTriggerFromOrder_OpenLong(t *testing.T) {
	o := &futures.Order{
		OrderID:      42,
		Symbol:       "BTCUSDT",
		Side:         futures.SideTypeBuy,
		Type:         futures.OrderTypeStopMarket,
		StopPrice:    "100000.5",
		OrigQuantity: "0.25",
		Time:         1724400000000,
	}

	trig, err := triggerFromOrder(o, 10)
	require.NoError(t, err)
	assert.Equal(t, "42", trig.OrderID)
	assert.Equal(t, types.SideOpenLong, trig.Side)
	assert.Equal(t, 100000.5, trig.TriggerPrice)
	assert.Equal(t, 0.25, trig.Size)
	assert.Equal(t, 10, trig.Leverage)
}

func TestTriggerFromOrder_ReduceOnlySellIsCloseLong(t *testing.T) {
	o := &futures.Order{
		OrderID:      7,
		Symbol:       "BTCUSDT",
		Side:         futures.SideTypeSell,
		Type:         futures.OrderTypeStopMarket,
		ReduceOnly:   true,
		StopPrice:    "95000",
		OrigQuantity: "0.1",
	}

	trig, err := triggerFromOrder(o, 0)
	require.NoError(t, err)
	assert.Equal(t, types.SideCloseLong, trig.Side)
	assert.True(t, trig.ReduceOnly())
	assert.Equal(t, types.DefaultLeverage, trig.Leverage)
}

func TestTriggerFromOrder_TakeProfitTypeIsClose(t *testing.T) {
	o := &futures.Order{
		OrderID:      8,
		Symbol:       "BTCUSDT",
		Side:         futures.SideTypeBuy,
		Type:         futures.OrderTypeTakeProfitMarket,
		StopPrice:    "90000",
		OrigQuantity: "0.5",
	}

	trig, err := triggerFromOrder(o, 20)
	require.NoError(t, err)
	assert.Equal(t, types.SideCloseShort, trig.Side)
}

func TestTriggerFromOrder_BadStopPrice(t *testing.T) {
	o := &futures.Order{
		OrderID:      9,
		Symbol:       "BTCUSDT",
		Side:         futures.SideTypeBuy,
		Type:         futures.OrderTypeStopMarket,
		StopPrice:    "0",
		OrigQuantity: "0.5",
	}

	_, err := triggerFromOrder(o, 20)
	require.ErrorIs(t, err, types.ErrSchemaMismatch)
}

func TestIsTriggerType(t *testing.T) {
	assert.True(t, isTriggerType(futures.OrderTypeStop))
	assert.True(t, isTriggerType(futures.OrderTypeStopMarket))
	assert.True(t, isTriggerType(futures.OrderTypeTakeProfit))
	assert.True(t, isTriggerType(futures.OrderTypeTakeProfitMarket))
	assert.True(t, isTriggerType(futures.OrderTypeTrailingStopMarket))
	assert.False(t, isTriggerType(futures.OrderTypeLimit))
	assert.False(t, isTriggerType(futures.OrderTypeMarket))
}

func TestPositionFromRisk(t *testing.T) {
	pos, err := positionFromRisk(&futures.PositionRisk{
		Symbol:           "BTCUSDT",
		PositionAmt:      "-0.75",
		EntryPrice:       "101000",
		Leverage:         "25",
		LiquidationPrice: "140000",
	})
	require.NoError(t, err)
	assert.Equal(t, types.DirectionShort, pos.Direction)
	assert.Equal(t, 0.75, pos.Size)
	assert.Equal(t, 25, pos.Leverage)
}

func TestPositionFromRisk_FlatIsNil(t *testing.T) {
	pos, err := positionFromRisk(&futures.PositionRisk{
		Symbol:      "BTCUSDT",
		PositionAmt: "0",
	})
	require.NoError(t, err)
	assert.Nil(t, pos)
}
