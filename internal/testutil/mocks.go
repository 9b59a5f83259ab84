// Package testutil provides hand-rolled venue fakes and a fake clock for
// engine tests. The fakes are stateful rather than expectation-based:
// tests set fields, run the code under test, then assert on recorded
// calls.
package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/mirrordesk/perp-mirror/internal/venue"
	"github.com/mirrordesk/perp-mirror/pkg/types"
)

// SourceStub implements venue.SourceClient from plain fields.
type SourceStub struct {
	mu sync.Mutex

	TickerPrice  float64
	TickerErr    error
	Positions    []*types.Position
	PositionsErr error
	Account      types.AccountSummary
	AccountErr   error
	Filled       []*types.FilledOrder
	FilledErr    error
	Triggers     []*types.TriggerOrder
	TriggersErr  error
}

func NewSourceStub() *SourceStub {
	return &SourceStub{
		TickerPrice: 100000,
		Account:     types.AccountSummary{TotalEquity: 10000, Available: 10000, LeverageDefault: 10},
	}
}

func (s *SourceStub) GetTicker(ctx context.Context) (*types.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TickerErr != nil {
		return nil, s.TickerErr
	}
	return &types.Ticker{Last: s.TickerPrice}, nil
}

func (s *SourceStub) GetPositions(ctx context.Context, contract string) ([]*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Positions, s.PositionsErr
}

func (s *SourceStub) GetAccount(ctx context.Context) (*types.AccountSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AccountErr != nil {
		return nil, s.AccountErr
	}
	acct := s.Account
	return &acct, nil
}

func (s *SourceStub) GetRecentFilledOrders(ctx context.Context, contract string, minutes int) ([]*types.FilledOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Filled, s.FilledErr
}

func (s *SourceStub) GetAllTriggerOrders(ctx context.Context, contract string) ([]*types.TriggerOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Triggers, s.TriggersErr
}

// SetTicker updates the stubbed last price.
func (s *SourceStub) SetTicker(last float64) {
	s.mu.Lock()
	s.TickerPrice = last
	s.mu.Unlock()
}

// SetTriggers replaces the stubbed trigger-order listing.
func (s *SourceStub) SetTriggers(triggers ...*types.TriggerOrder) {
	s.mu.Lock()
	s.Triggers = triggers
	s.mu.Unlock()
}

// MirrorStub implements venue.MirrorClient. Every mutating call is
// recorded; error fields make individual operations fail.
type MirrorStub struct {
	*SourceStub
	mu sync.Mutex

	MarginMode    types.MarginMode
	MarginModeErr error
	ForceCrossErr error
	LeverageErr   error
	PlaceResult   *venue.TriggerResult
	PlaceErr      error
	CancelErr     error
	MarketID      string
	MarketErr     error
	CloseErr      error

	ForceCrossCalls int
	LeverageCalls   []int
	PlacedTriggers  []*venue.TriggerRequest
	CanceledIDs     []string
	MarketOrders    []MarketCall
	CloseCalls      int

	nextOrderID int
}

// MarketCall records one PlaceMarket invocation.
type MarketCall struct {
	Contract   string
	Size       float64
	ReduceOnly bool
}

func NewMirrorStub() *MirrorStub {
	return &MirrorStub{
		SourceStub: &SourceStub{
			TickerPrice: 99900,
			Account:     types.AccountSummary{TotalEquity: 1000, Available: 1000, LeverageDefault: 10},
		},
		MarginMode: types.MarginModeCross,
	}
}

func (m *MirrorStub) GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarginModeErr != nil {
		return types.MarginModeUnknown, m.MarginModeErr
	}
	return m.MarginMode, nil
}

func (m *MirrorStub) ForceCrossMargin(ctx context.Context, contract string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForceCrossCalls++
	if m.ForceCrossErr != nil {
		return m.ForceCrossErr
	}
	m.MarginMode = types.MarginModeCross
	return nil
}

func (m *MirrorStub) SetLeverage(ctx context.Context, contract string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LeverageCalls = append(m.LeverageCalls, leverage)
	return m.LeverageErr
}

func (m *MirrorStub) PlaceTrigger(ctx context.Context, req *venue.TriggerRequest) (*venue.TriggerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlaceErr != nil {
		return nil, m.PlaceErr
	}
	m.PlacedTriggers = append(m.PlacedTriggers, req)
	result := m.PlaceResult
	if result == nil {
		m.nextOrderID++
		result = &venue.TriggerResult{
			OrderID:     "m-" + itoa(m.nextOrderID),
			TPSLApplied: req.TPPrice > 0 || req.SLPrice > 0,
		}
	}
	m.mu.Unlock()
	// Model the venue: a placed trigger shows up in the live listing.
	m.SourceStub.mu.Lock()
	m.SourceStub.Triggers = append(m.SourceStub.Triggers, &types.TriggerOrder{
		OrderID:      result.OrderID,
		Contract:     req.Contract,
		Side:         req.Side,
		TriggerPrice: req.TriggerPrice,
		Size:         req.Size,
		TPPrice:      req.TPPrice,
		SLPrice:      req.SLPrice,
	})
	m.SourceStub.mu.Unlock()
	m.mu.Lock()
	return result, nil
}

func (m *MirrorStub) CancelTrigger(ctx context.Context, orderID string) error {
	m.mu.Lock()
	m.CanceledIDs = append(m.CanceledIDs, orderID)
	err := m.CancelErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	// Model the venue: a successful cancel drops the order from the live
	// listing.
	m.SourceStub.mu.Lock()
	kept := m.SourceStub.Triggers[:0]
	for _, o := range m.SourceStub.Triggers {
		if o.OrderID != orderID {
			kept = append(kept, o)
		}
	}
	m.SourceStub.Triggers = kept
	m.SourceStub.mu.Unlock()
	return nil
}

func (m *MirrorStub) PlaceMarket(ctx context.Context, contract string, size float64, reduceOnly bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarketErr != nil {
		return "", m.MarketErr
	}
	m.MarketOrders = append(m.MarketOrders, MarketCall{Contract: contract, Size: size, ReduceOnly: reduceOnly})
	if m.MarketID != "" {
		return m.MarketID, nil
	}
	m.nextOrderID++
	return "mk-" + itoa(m.nextOrderID), nil
}

func (m *MirrorStub) ClosePosition(ctx context.Context, contract string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return m.CloseErr
}

// SetMarginMode overrides the stubbed mode.
func (m *MirrorStub) SetMarginMode(mode types.MarginMode) {
	m.mu.Lock()
	m.MarginMode = mode
	m.mu.Unlock()
}

// NotifierStub records sent messages.
type NotifierStub struct {
	mu       sync.Mutex
	Messages []NotifierMessage
	SendErr  error
}

// NotifierMessage is one recorded Send call.
type NotifierMessage struct {
	Category string
	Text     string
}

func (n *NotifierStub) Send(ctx context.Context, category, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SendErr != nil {
		return n.SendErr
	}
	n.Messages = append(n.Messages, NotifierMessage{Category: category, Text: text})
	return nil
}

// SendCritical records under a critical-prefixed category, matching the
// production rate limiter's bypass channel.
func (n *NotifierStub) SendCritical(ctx context.Context, category, text string) error {
	return n.Send(ctx, "critical:"+category, text)
}

// Sent returns a copy of recorded messages.
func (n *NotifierStub) Sent() []NotifierMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotifierMessage, len(n.Messages))
	copy(out, n.Messages)
	return out
}

// CountCategory returns how many messages were sent for a category.
func (n *NotifierStub) CountCategory(category string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, msg := range n.Messages {
		if msg.Category == category {
			count++
		}
	}
	return count
}

func itoa(v int) string { return strconv.Itoa(v) }
