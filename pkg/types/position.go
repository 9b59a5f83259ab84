package types

// Direction of an open position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Position is an open position on either venue. Size zero means flat; flat
// positions are not returned by the adapters.
type Position struct {
	Contract         string
	Direction        Direction
	Size             float64
	EntryPrice       float64
	Leverage         int
	LiquidationPrice float64
}

// Flat reports whether the position carries no exposure.
func (p *Position) Flat() bool {
	return p == nil || p.Size == 0
}

// AccountSummary is the equity view used for margin-ratio computation.
type AccountSummary struct {
	TotalEquity     float64
	Available       float64
	LeverageDefault int
}

// Ticker is a normalized 24h ticker sample.
type Ticker struct {
	Last      float64
	High      float64
	Low       float64
	Volume    float64
	ChangePct float64
}

// MarginMode of a futures account for a contract.
type MarginMode string

const (
	MarginModeCross    MarginMode = "cross"
	MarginModeIsolated MarginMode = "isolated"
	MarginModeUnknown  MarginMode = "unknown"
)

// FilledOrder is a recently executed order on the source venue, used as
// authoritative fill evidence by the analyzer.
type FilledOrder struct {
	OrderID  string
	Contract string
	Price    float64
	Size     float64
	FilledAt int64 // unix milliseconds
}
