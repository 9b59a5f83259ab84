package gatemirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(&Config{
		BaseURL:   server.URL,
		APIKey:    "key",
		APISecret: "secret",
		Contract:  "BTC_USDT",
		Logger:    zap.NewNop(),
	})
}

func TestSigner_Deterministic(t *testing.T) {
	s := NewSigner("k", "s")
	sig1 := s.Sign("GET", "/api/v4/futures/usdt/accounts", "", "", 1724000000)
	sig2 := s.Sign("GET", "/api/v4/futures/usdt/accounts", "", "", 1724000000)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 128) // hex SHA-512

	// Any input change must change the signature.
	assert.NotEqual(t, sig1, s.Sign("POST", "/api/v4/futures/usdt/accounts", "", "", 1724000000))
	assert.NotEqual(t, sig1, s.Sign("GET", "/api/v4/futures/usdt/accounts", "", "", 1724000001))
}

func TestGetTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/futures/usdt/tickers", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("SIGN"))
		assert.Equal(t, "key", r.Header.Get("KEY"))
		json.NewEncoder(w).Encode([]tickerPayload{{
			Last: "99800.5", High24h: "101000", Low24h: "98000",
			Volume24h: "12345", ChangePct: "-1.2",
		}})
	})

	ticker, err := c.GetTicker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99800.5, ticker.Last)
	assert.Equal(t, -1.2, ticker.ChangePct)
}

func TestGetMarginMode(t *testing.T) {
	leverage := "10"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(positionPayload{Contract: "BTC_USDT", Size: 5, Leverage: leverage})
	})

	mode, err := c.GetMarginMode(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, types.MarginModeIsolated, mode)

	leverage = "0"
	mode, err = c.GetMarginMode(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	assert.Equal(t, types.MarginModeCross, mode)
}

func TestCancelTrigger_NotFoundIsVenueError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(apiError{Label: "AUTO_ORDER_NOT_FOUND", Message: "order not found"})
	})

	err := c.CancelTrigger(context.Background(), "12345")
	require.Error(t, err)
	assert.True(t, types.IsIdempotentVenueError(err))
}

func TestPlaceTrigger_PartialTPSL(t *testing.T) {
	var got triggerOrderRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(triggerOrderResponse{ID: 777, TPSLStored: false})
	})

	res, err := c.PlaceTrigger(context.Background(), &venue.TriggerRequest{
		Contract:     "BTC_USDT",
		Side:         types.SideOpenLong,
		TriggerPrice: 100000,
		Size:         3,
		TPPrice:      105000,
		SLPrice:      95000,
	})
	require.NoError(t, err)
	assert.Equal(t, "777", res.OrderID)
	assert.False(t, res.TPSLApplied)

	assert.Equal(t, int64(3), got.Initial.Size)
	assert.Equal(t, 2, got.Trigger.Rule)
	assert.Equal(t, "100000", got.Trigger.Price)
	assert.Equal(t, "105000", got.Initial.StopProfit)
	assert.Equal(t, "95000", got.Initial.StopLoss)
}

func TestSignedContracts(t *testing.T) {
	assert.Equal(t, int64(3), signedContracts(types.SideOpenLong, 3))
	assert.Equal(t, int64(3), signedContracts(types.SideCloseShort, 3))
	assert.Equal(t, int64(-3), signedContracts(types.SideOpenShort, 3))
	assert.Equal(t, int64(-3), signedContracts(types.SideCloseLong, 3))
	// Minimum one contract.
	assert.Equal(t, int64(1), signedContracts(types.SideOpenLong, 0))
}

func TestTriggerRuleFor(t *testing.T) {
	assert.Equal(t, 2, triggerRuleFor(types.SideOpenLong))
	assert.Equal(t, 2, triggerRuleFor(types.SideCloseShort))
	assert.Equal(t, 1, triggerRuleFor(types.SideOpenShort))
	assert.Equal(t, 1, triggerRuleFor(types.SideCloseLong))
}

func TestGetAllTriggerOrders_AliasPayloads(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": 101, "contract": "BTC_USDT", "side": "open_long",
			 "trigger_price": "100000", "size": 2, "leverage": "10"},
			{"auto_order_id": "102", "symbol": "BTC_USDT", "trade_side": "close_long",
			 "stop_price": 95000.0, "qty": "1"},
			{"contract": "BTC_USDT"}
		]`))
	})

	triggers, err := c.GetAllTriggerOrders(context.Background(), "BTC_USDT")
	require.NoError(t, err)
	require.Len(t, triggers, 2) // the unparseable row is skipped, not fatal
	assert.Equal(t, "101", triggers[0].OrderID)
	assert.Equal(t, types.SideOpenLong, triggers[0].Side)
	assert.Equal(t, "102", triggers[1].OrderID)
	assert.Equal(t, types.SideCloseLong, triggers[1].Side)
}
