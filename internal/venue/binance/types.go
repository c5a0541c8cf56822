package binance

// Ticker24h is /fapi/v1/ticker/24hr for one symbol.
type Ticker24h struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Volume    string `json:"volume"`
}

// BookTicker is /fapi/v1/ticker/bookTicker for one symbol.
type BookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// PremiumIndex is /fapi/v1/premiumIndex for one symbol.
type PremiumIndex struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"` // epoch ms
	MarkPrice       string `json:"markPrice"`
}

// Depth is /fapi/v1/depth.
type Depth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// ExchangeInfo is /fapi/v1/exchangeInfo.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo is one catalog entry with its filter list.
type SymbolInfo struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
	BaseAsset    string `json:"baseAsset"`
	QuoteAsset   string `json:"quoteAsset"`
	MarginAsset  string `json:"marginAsset"`
	Filters      []struct {
		FilterType string `json:"filterType"`
		StepSize   string `json:"stepSize"`
		MinQty     string `json:"minQty"`
		TickSize   string `json:"tickSize"`
		Notional   string `json:"notional"`
	} `json:"filters"`
}
