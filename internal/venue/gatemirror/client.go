// Package gatemirror implements venue.MirrorClient over a Gate-style
// futures REST API. Requests are signed with HMAC-SHA512, rate-limited per
// endpoint class, and retried on transport errors; venue business errors
// are mapped onto types.VenueError so callers can recognize idempotent
// outcomes.
package gatemirror

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

const (
	apiPrefix  = "/api/v4/futures/usdt"
	settleUnit = "usdt"
)

// Client is the mirror venue adapter.
type Client struct {
	http     *resty.Client
	signer   *Signer
	contract string
	logger   *zap.Logger

	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

// Config holds adapter configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Contract  string
	Logger    *zap.Logger
}

// New creates a mirror venue client.
func New(cfg *Config) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(8 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		}).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:         httpClient,
		signer:       NewSigner(cfg.APIKey, cfg.APISecret),
		contract:     cfg.Contract,
		logger:       cfg.Logger,
		readLimiter:  rate.NewLimiter(rate.Limit(10), 10),
		writeLimiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// do signs and executes one request, decoding a 2xx body into out.
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, method, path, query string, body, out any) error {
	if err := limiter.Wait(ctx); err != nil {
		return &types.OperationFailed{Category: "mirror-rate-limit", Err: err}
	}

	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
	}

	timestamp := time.Now().Unix()
	req := c.http.R().
		SetContext(ctx).
		SetHeader("KEY", c.signer.APIKey()).
		SetHeader("SIGN", c.signer.Sign(method, path, query, bodyStr, timestamp)).
		SetHeader("Timestamp", strconv.FormatInt(timestamp, 10))
	if query != "" {
		req.SetQueryString(query)
	}
	if bodyStr != "" {
		req.SetBody(bodyStr)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &types.OperationFailed{Category: "mirror-transport", Err: err}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(resp.Body(), &apiErr); jsonErr == nil && apiErr.Label != "" {
			return &types.VenueError{Venue: "mirror", Code: apiErr.Label, Msg: apiErr.Message}
		}
		return &types.VenueError{
			Venue: "mirror",
			Code:  strconv.Itoa(resp.StatusCode()),
			Msg:   string(resp.Body()),
		}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%w: decode %s %s: %v", types.ErrSchemaMismatch, method, path, err)
		}
	}
	return nil
}

// GetTicker returns the latest ticker for the configured contract.
func (c *Client) GetTicker(ctx context.Context) (*types.Ticker, error) {
	var tickers []tickerPayload
	err := c.do(ctx, c.readLimiter, http.MethodGet, apiPrefix+"/tickers", "contract="+c.contract, nil, &tickers)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("ticker %s: %w: empty response", c.contract, types.ErrSchemaMismatch)
	}
	t := tickers[0]
	return &types.Ticker{
		Last:      parseFloat(t.Last),
		High:      parseFloat(t.High24h),
		Low:       parseFloat(t.Low24h),
		Volume:    parseFloat(t.Volume24h),
		ChangePct: parseFloat(t.ChangePct),
	}, nil
}

// GetPositions returns the open position for the contract, if any.
func (c *Client) GetPositions(ctx context.Context, contract string) ([]*types.Position, error) {
	var pos positionPayload
	err := c.do(ctx, c.readLimiter, http.MethodGet, apiPrefix+"/positions/"+contract, "", nil, &pos)
	if err != nil {
		if types.IsIdempotentVenueError(err) || isPositionNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	p := positionFromPayload(&pos)
	if p == nil {
		return nil, nil
	}
	return []*types.Position{p}, nil
}

// GetAccount returns the mirror equity view.
func (c *Client) GetAccount(ctx context.Context) (*types.AccountSummary, error) {
	var acct accountPayload
	err := c.do(ctx, c.readLimiter, http.MethodGet, apiPrefix+"/accounts", "", nil, &acct)
	if err != nil {
		return nil, err
	}
	return &types.AccountSummary{
		TotalEquity:     parseFloat(acct.Total),
		Available:       parseFloat(acct.Available),
		LeverageDefault: types.DefaultLeverage,
	}, nil
}

// GetRecentFilledOrders returns trades within the window.
func (c *Client) GetRecentFilledOrders(ctx context.Context, contract string, minutes int) ([]*types.FilledOrder, error) {
	var trades []tradePayload
	err := c.do(ctx, c.readLimiter, http.MethodGet, apiPrefix+"/my_trades", "contract="+contract+"&limit=100", nil, &trades)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute).UnixMilli()
	filled := make([]*types.FilledOrder, 0, len(trades))
	for _, t := range trades {
		if t.CreateMS < cutoff {
			continue
		}
		filled = append(filled, &types.FilledOrder{
			OrderID:  t.OrderID,
			Contract: t.Contract,
			Price:    parseFloat(t.Price),
			Size:     float64(abs64(t.Size)),
			FilledAt: t.CreateMS,
		})
	}
	return filled, nil
}

// GetAllTriggerOrders returns open price-triggered orders. Payloads are
// decoded as open maps and normalized through the alias-aware parser since
// trigger schemas shift across API revisions.
func (c *Client) GetAllTriggerOrders(ctx context.Context, contract string) ([]*types.TriggerOrder, error) {
	var payloads []map[string]any
	err := c.do(ctx, c.readLimiter, http.MethodGet, apiPrefix+"/price_orders", "contract="+contract+"&status=open", nil, &payloads)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(payloads))
	triggers := make([]*types.TriggerOrder, 0, len(payloads))
	for _, p := range payloads {
		trig, err := types.TriggerOrderFromPayload("mirror", p)
		if err != nil {
			c.logger.Warn("mirror-trigger-skipped", zap.Error(err))
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

// GetMarginMode reads the margin mode for the contract. Leverage "0" is
// the venue's encoding for cross margin.
func (c *Client) GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error) {
	var pos positionPayload
	err := c.do(ctx, c.readLimiter, http.MethodGet, apiPrefix+"/positions/"+contract, "", nil, &pos)
	if err != nil {
		if types.IsIdempotentVenueError(err) || isPositionNotFound(err) {
			return types.MarginModeUnknown, nil
		}
		return types.MarginModeUnknown, err
	}
	if pos.Leverage == "0" {
		return types.MarginModeCross, nil
	}
	return types.MarginModeIsolated, nil
}

// ForceCrossMargin switches the contract to cross margin by zeroing the
// per-position leverage.
func (c *Client) ForceCrossMargin(ctx context.Context, contract string) error {
	return c.do(ctx, c.writeLimiter, http.MethodPost,
		apiPrefix+"/positions/"+contract+"/leverage", "leverage=0",
		&leverageUpdate{Leverage: "0"}, nil)
}

// SetLeverage sets the contract leverage.
func (c *Client) SetLeverage(ctx context.Context, contract string, leverage int) error {
	lev := strconv.Itoa(types.ClampLeverage(leverage))
	return c.do(ctx, c.writeLimiter, http.MethodPost,
		apiPrefix+"/positions/"+contract+"/leverage", "leverage="+lev,
		&leverageUpdate{Leverage: lev}, nil)
}

// PlaceTrigger places a price-triggered order with optional TP/SL legs.
func (c *Client) PlaceTrigger(ctx context.Context, req *venue.TriggerRequest) (*venue.TriggerResult, error) {
	size := signedContracts(req.Side, req.Size)
	body := &triggerOrderRequest{
		Initial: initialOrder{
			Contract:   req.Contract,
			Size:       size,
			Price:      "0", // execute at market once triggered
			TIF:        "ioc",
			ReduceOnly: req.ReduceOnly,
			Text:       clientOrderID(),
		},
		Trigger: triggerRule{
			Price: formatPrice(req.TriggerPrice),
			Rule:  triggerRuleFor(req.Side),
		},
	}
	if req.TPPrice > 0 {
		body.Initial.StopProfit = formatPrice(req.TPPrice)
	}
	if req.SLPrice > 0 {
		body.Initial.StopLoss = formatPrice(req.SLPrice)
	}

	var resp triggerOrderResponse
	err := c.do(ctx, c.writeLimiter, http.MethodPost, apiPrefix+"/price_orders", "", body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		return nil, fmt.Errorf("place trigger: %w: empty order id", types.ErrSchemaMismatch)
	}

	tpslApplied := true
	if (req.TPPrice > 0 || req.SLPrice > 0) && !resp.TPSLStored {
		tpslApplied = false
	}
	return &venue.TriggerResult{
		OrderID:     strconv.FormatInt(resp.ID, 10),
		TPSLApplied: tpslApplied,
	}, nil
}

// CancelTrigger cancels a price-triggered order.
func (c *Client) CancelTrigger(ctx context.Context, orderID string) error {
	return c.do(ctx, c.writeLimiter, http.MethodDelete, apiPrefix+"/price_orders/"+orderID, "", nil, nil)
}

// PlaceMarket places an IOC market order. Negative size sells.
func (c *Client) PlaceMarket(ctx context.Context, contract string, size float64, reduceOnly bool) (string, error) {
	body := &marketOrderRequest{
		Contract:   contract,
		Size:       int64(size),
		Price:      "0",
		TIF:        "ioc",
		ReduceOnly: reduceOnly,
		Text:       clientOrderID(),
	}
	var resp marketOrderResponse
	err := c.do(ctx, c.writeLimiter, http.MethodPost, apiPrefix+"/orders", "", body, &resp)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.ID, 10), nil
}

// ClosePosition closes the whole contract position at market.
func (c *Client) ClosePosition(ctx context.Context, contract string) error {
	body := &marketOrderRequest{
		Contract: contract,
		Size:     0,
		Price:    "0",
		TIF:      "ioc",
		Close:    true,
		Text:     clientOrderID(),
	}
	return c.do(ctx, c.writeLimiter, http.MethodPost, apiPrefix+"/orders", "", body, nil)
}

// clientOrderID tags orders placed by this engine. The venue requires the
// t- prefix for custom ids.
func clientOrderID() string {
	return "t-pm-" + uuid.NewString()[:18]
}
