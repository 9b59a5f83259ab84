// Package binancesrc implements venue.SourceClient over Binance USDT-M
// futures. The engine only reads from the source venue; every call is
// retried on transport errors and surfaced as types.OperationFailed when
// retries are exhausted.
package binancesrc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/pkg/types"
)

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// Client is the Binance futures source adapter.
type Client struct {
	api      *futures.Client
	contract string
	logger   *zap.Logger

	mu           sync.Mutex
	lastLeverage int // last leverage observed on positions, used when orders carry none
}

// Config holds adapter configuration.
type Config struct {
	APIKey    string
	APISecret string
	Contract  string
	Logger    *zap.Logger
}

// New creates a Binance futures source client.
func New(cfg *Config) *Client {
	return &Client{
		api:          futures.NewClient(cfg.APIKey, cfg.APISecret),
		contract:     cfg.Contract,
		logger:       cfg.Logger,
		lastLeverage: types.DefaultLeverage,
	}
}

// GetTicker returns the 24h ticker for the configured contract.
func (c *Client) GetTicker(ctx context.Context) (*types.Ticker, error) {
	var stats []*futures.PriceChangeStats
	err := c.withRetry(ctx, "ticker", func() error {
		var callErr error
		stats, callErr = c.api.NewListPriceChangeStatsService().Symbol(c.contract).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("ticker %s: %w: empty stats", c.contract, types.ErrSchemaMismatch)
	}

	s := stats[0]
	return &types.Ticker{
		Last:      parseFloat(s.LastPrice),
		High:      parseFloat(s.HighPrice),
		Low:       parseFloat(s.LowPrice),
		Volume:    parseFloat(s.Volume),
		ChangePct: parseFloat(s.PriceChangePercent),
	}, nil
}

// GetPositions returns open positions for the contract.
func (c *Client) GetPositions(ctx context.Context, contract string) ([]*types.Position, error) {
	var risks []*futures.PositionRisk
	err := c.withRetry(ctx, "positions", func() error {
		var callErr error
		risks, callErr = c.api.NewGetPositionRiskService().Symbol(contract).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	positions := make([]*types.Position, 0, len(risks))
	for _, r := range risks {
		pos, err := positionFromRisk(r)
		if err != nil {
			c.logger.Warn("source-position-skipped", zap.Error(err))
			continue
		}
		if pos == nil {
			continue
		}
		c.rememberLeverage(pos.Leverage)
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetAccount returns the source equity view.
func (c *Client) GetAccount(ctx context.Context) (*types.AccountSummary, error) {
	var account *futures.Account
	err := c.withRetry(ctx, "account", func() error {
		var callErr error
		account, callErr = c.api.NewGetAccountService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return &types.AccountSummary{
		TotalEquity:     parseFloat(account.TotalMarginBalance),
		Available:       parseFloat(account.AvailableBalance),
		LeverageDefault: c.cachedLeverage(),
	}, nil
}

// GetRecentFilledOrders returns orders filled within the window.
func (c *Client) GetRecentFilledOrders(ctx context.Context, contract string, minutes int) ([]*types.FilledOrder, error) {
	var orders []*futures.Order
	err := c.withRetry(ctx, "recent-fills", func() error {
		var callErr error
		orders, callErr = c.api.NewListOrdersService().Symbol(contract).Limit(100).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute).UnixMilli()
	filled := make([]*types.FilledOrder, 0, len(orders))
	for _, o := range orders {
		if o.Status != futures.OrderStatusTypeFilled || o.UpdateTime < cutoff {
			continue
		}
		filled = append(filled, &types.FilledOrder{
			OrderID:  fmt.Sprintf("%d", o.OrderID),
			Contract: o.Symbol,
			Price:    parseFloat(o.AvgPrice),
			Size:     parseFloat(o.ExecutedQuantity),
			FilledAt: o.UpdateTime,
		})
	}
	return filled, nil
}

// GetAllTriggerOrders returns the union of conditional order flavors
// (stop, stop-market, take-profit, take-profit-market, trailing stop),
// deduped by order ID.
func (c *Client) GetAllTriggerOrders(ctx context.Context, contract string) ([]*types.TriggerOrder, error) {
	var orders []*futures.Order
	err := c.withRetry(ctx, "trigger-orders", func() error {
		var callErr error
		orders, callErr = c.api.NewListOpenOrdersService().Symbol(contract).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(orders))
	triggers := make([]*types.TriggerOrder, 0, len(orders))
	for _, o := range orders {
		if !isTriggerType(o.Type) {
			continue
		}
		trig, err := triggerFromOrder(o, c.cachedLeverage())
		if err != nil {
			c.logger.Warn("source-trigger-skipped",
				zap.Int64("order-id", o.OrderID),
				zap.Error(err))
			continue
		}
		if seen[trig.OrderID] {
			continue
		}
		seen[trig.OrderID] = true
		triggers = append(triggers, trig)
	}
	return triggers, nil
}

func (c *Client) rememberLeverage(lev int) {
	c.mu.Lock()
	c.lastLeverage = types.ClampLeverage(lev)
	c.mu.Unlock()
}

func (c *Client) cachedLeverage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLeverage
}

// withRetry runs call up to maxAttempts times, backing off between
// transport failures. Venue business errors are returned immediately.
func (c *Client) withRetry(ctx context.Context, category string, call func() error) error {
	var lastErr error
	backoff := retryBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		var apiErr *common.APIError
		if errors.As(lastErr, &apiErr) {
			return &types.VenueError{
				Venue: "binance",
				Code:  fmt.Sprintf("%d", apiErr.Code),
				Msg:   apiErr.Message,
			}
		}
		c.logger.Warn("source-call-retrying",
			zap.String("category", category),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return &types.OperationFailed{Category: category, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return &types.OperationFailed{Category: category, Err: lastErr}
}
