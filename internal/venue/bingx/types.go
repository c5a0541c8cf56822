package bingx

import "encoding/json"

// APIResponse is the swap v2 envelope.
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// TickerData is /openApi/swap/v2/quote/ticker.
type TickerData struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	Volume    string `json:"volume"`
}

// PremiumIndexData is /openApi/swap/v2/quote/premiumIndex.
type PremiumIndexData struct {
	Symbol          string `json:"symbol"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"` // epoch ms
	MarkPrice       string `json:"markPrice"`
}

// DepthData is /openApi/swap/v2/quote/depth.
type DepthData struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
	T    int64       `json:"T"`
}

// ContractInfo is one entry of /openApi/swap/v2/quote/contracts.
type ContractInfo struct {
	Symbol            string  `json:"symbol"` // BTC-USDT
	Asset             string  `json:"asset"`  // base coin
	Currency          string  `json:"currency"`
	Status            int     `json:"status"` // 1 = online
	TradeMinQuantity  float64 `json:"tradeMinQuantity"`
	Size              string  `json:"size"`
	QuantityPrecision int     `json:"quantityPrecision"`
	PricePrecision    int     `json:"pricePrecision"`
}
