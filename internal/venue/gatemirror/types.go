package gatemirror

// Wire structs for the mirror venue's futures API. Only fields the engine
// reads are declared; everything else is ignored on decode.

type apiError struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

type tickerPayload struct {
	Last      string `json:"last"`
	High24h   string `json:"high_24h"`
	Low24h    string `json:"low_24h"`
	Volume24h string `json:"volume_24h"`
	ChangePct string `json:"change_percentage"`
}

type accountPayload struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

type positionPayload struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"` // signed contracts
	EntryPrice string `json:"entry_price"`
	Leverage   string `json:"leverage"` // "0" means cross margin
	LiqPrice   string `json:"liq_price"`
	CrossMode  int    `json:"cross_leverage_limit,omitempty"`
}

type tradePayload struct {
	ID       int64  `json:"id"`
	OrderID  string `json:"order_id"`
	Contract string `json:"contract"`
	Price    string `json:"price"`
	Size     int64  `json:"size"`
	CreateMS int64  `json:"create_time_ms"`
}

type triggerOrderRequest struct {
	Initial initialOrder `json:"initial"`
	Trigger triggerRule  `json:"trigger"`
}

type initialOrder struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`  // signed contracts, 0 with close for full close
	Price      string `json:"price"` // "0" means market execution
	TIF        string `json:"tif"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
	StopProfit string `json:"stop_profit_price,omitempty"`
	StopLoss   string `json:"stop_loss_price,omitempty"`
	Text       string `json:"text,omitempty"` // client order id
}

type triggerRule struct {
	Price string `json:"price"`
	Rule  int    `json:"rule"` // 1: >= trigger, 2: <= trigger
}

type triggerOrderResponse struct {
	ID         int64 `json:"id"`
	TPSLStored bool  `json:"tpsl_stored"`
}

type marketOrderRequest struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`
	Price      string `json:"price"`
	TIF        string `json:"tif"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
	Close      bool   `json:"close,omitempty"`
	Text       string `json:"text,omitempty"`
}

type marketOrderResponse struct {
	ID int64 `json:"id"`
}

type leverageUpdate struct {
	Leverage string `json:"leverage"`
}
