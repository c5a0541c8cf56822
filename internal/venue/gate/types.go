package gate

// TickerInfo is one entry of /api/v4/futures/usdt/tickers.
type TickerInfo struct {
	Contract    string `json:"contract"`
	Last        string `json:"last"`
	HighestBid  string `json:"highest_bid"`
	LowestAsk   string `json:"lowest_ask"`
	FundingRate string `json:"funding_rate"`
	Volume24h   string `json:"volume_24h"`
}

// ContractInfo is /api/v4/futures/usdt/contracts/{contract}.
type ContractInfo struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	QuantoMultiplier string `json:"quanto_multiplier"`
	OrderSizeMin     int64  `json:"order_size_min"`
	OrderPriceRound  string `json:"order_price_round"`
	MarkPriceRound   string `json:"mark_price_round"`
	FundingRate      string `json:"funding_rate"`
	FundingNextApply int64  `json:"funding_next_apply"` // epoch seconds
	FundingInterval  int64  `json:"funding_interval"`
	InDelisting      bool   `json:"in_delisting"`
	DelistingTime    int64  `json:"delisting_time"`
	Status           string `json:"status"`
	LastPrice        string `json:"last_price"`
}

// BookLevel is one level of /api/v4/futures/usdt/order_book.
type BookLevel struct {
	Price string  `json:"p"`
	Size  float64 `json:"s"` // contracts
}

// BookResult is the order_book payload.
type BookResult struct {
	Current float64     `json:"current"`
	Asks    []BookLevel `json:"asks"`
	Bids    []BookLevel `json:"bids"`
}

// FundingRateEntry is one row of /api/v4/futures/usdt/funding_rate.
type FundingRateEntry struct {
	T int64  `json:"t"` // epoch seconds
	R string `json:"r"`
}

// APIError is Gate's error body, returned with non-2xx status.
type APIError struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// OrderRequest is the subset of POST /api/v4/futures/usdt/orders the
// executor uses. Size is in contracts, negative for short.
type OrderRequest struct {
	Contract   string `json:"contract"`
	Size       int64  `json:"size"`
	Price      string `json:"price"`         // "0" for market
	TIF        string `json:"tif,omitempty"` // ioc for market
	Text       string `json:"text,omitempty"`
	Close      bool   `json:"close,omitempty"`
	ReduceOnly bool   `json:"reduce_only,omitempty"`
}

// OrderInfo is a futures order record.
type OrderInfo struct {
	ID         int64   `json:"id"`
	Contract   string  `json:"contract"`
	Size       int64   `json:"size"`
	Left       int64   `json:"left"`
	Status     string  `json:"status"` // open | finished
	FinishAs   string  `json:"finish_as"`
	Price      string  `json:"price"`
	FillPrice  string  `json:"fill_price"`
	TIF        string  `json:"tif"`
	CreateTime float64 `json:"create_time"`
}

// AccountInfo is /api/v4/futures/usdt/accounts.
type AccountInfo struct {
	Total     string `json:"total"`
	Available string `json:"available"`
	Currency  string `json:"currency"`
}
