package mexc

import "encoding/json"

// APIResponse is the contract API envelope.
type APIResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// TickerData is one entry of /api/v1/contract/ticker. Numbers arrive as
// JSON numbers on this venue.
type TickerData struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"lastPrice"`
	Bid1        float64 `json:"bid1"`
	Ask1        float64 `json:"ask1"`
	FundingRate float64 `json:"fundingRate"`
	Volume24    float64 `json:"volume24"`
	Timestamp   int64   `json:"timestamp"`
}

// FundingData is one entry of /api/v1/contract/funding_rate.
type FundingData struct {
	Symbol         string  `json:"symbol"`
	FundingRate    float64 `json:"fundingRate"`
	NextSettleTime int64   `json:"nextSettleTime"` // epoch ms
	CollectCycle   int     `json:"collectCycle"`
}

// DepthData is /api/v1/contract/depth/{symbol}. Levels are
// [price, volume, orderCount] triplets.
type DepthData struct {
	Bids      [][]float64 `json:"bids"`
	Asks      [][]float64 `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

// ContractDetail is one entry of /api/v1/contract/detail.
type ContractDetail struct {
	Symbol       string  `json:"symbol"`
	DisplayName  string  `json:"displayNameEn"`
	BaseCoin     string  `json:"baseCoin"`
	QuoteCoin    string  `json:"quoteCoin"`
	SettleCoin   string  `json:"settleCoin"`
	State        int     `json:"state"` // 0 = enabled
	ContractSize float64 `json:"contractSize"`
	MinVol       float64 `json:"minVol"`
	VolUnit      float64 `json:"volUnit"`
	PriceUnit    float64 `json:"priceUnit"`
}
