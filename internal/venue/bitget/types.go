package bitget

import "encoding/json"

// APIResponse is the common envelope; success is code "00000".
type APIResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// TickerData is /api/mix/v1/market/ticker.
type TickerData struct {
	Symbol   string `json:"symbol"`
	Last     string `json:"last"`
	BestBid  string `json:"bestBid"`
	BestAsk  string `json:"bestAsk"`
	BaseVol  string `json:"baseVolume"`
	QuoteVol string `json:"quoteVolume"`
}

// FundRateData is /api/mix/v1/market/current-fundRate.
type FundRateData struct {
	Symbol      string `json:"symbol"`
	FundingRate string `json:"fundingRate"`
}

// FundingTimeData is /api/mix/v1/market/funding-time.
type FundingTimeData struct {
	Symbol      string `json:"symbol"`
	FundingTime string `json:"fundingTime"` // epoch ms
}

// DepthData is /api/mix/v1/market/depth.
type DepthData struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

// ContractInfo is one entry of /api/v2/mix/market/contracts.
type ContractInfo struct {
	Symbol         string `json:"symbol"`
	BaseCoin       string `json:"baseCoin"`
	QuoteCoin      string `json:"quoteCoin"`
	SymbolStatus   string `json:"symbolStatus"` // normal | ...
	MinTradeNum    string `json:"minTradeNum"`
	SizeMultiplier string `json:"sizeMultiplier"`
	PricePlace     string `json:"pricePlace"`    // decimals
	PriceEndStep   string `json:"priceEndStep"`  // tick in last decimal
	VolumePlace    string `json:"volumePlace"`   // qty decimals
	SymbolType     string `json:"symbolType"`    // perpetual | delivery
}
