package okx

import "encoding/json"

// APIResponse is the v5 envelope; success is code "0".
type APIResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// TickerData is one entry of /api/v5/market/ticker.
type TickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	BidPx  string `json:"bidPx"`
	AskPx  string `json:"askPx"`
	Vol24h string `json:"vol24h"`
}

// BookData is one entry of /api/v5/market/books. Levels are
// [price, size, liquidated, orders] quads.
type BookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	Ts   string     `json:"ts"`
}

// FundingRateData is one entry of /api/v5/public/funding-rate.
// FundingTime is empty on some instruments; the payout time is then unknown.
type FundingRateData struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`     // epoch ms
	NextFundingTime string `json:"nextFundingTime"` // epoch ms
}

// InstrumentData is one entry of /api/v5/public/instruments.
type InstrumentData struct {
	InstID    string `json:"instId"`
	InstType  string `json:"instType"`
	State     string `json:"state"` // live | suspend
	CtVal     string `json:"ctVal"` // contract value in base units
	CtValCcy  string `json:"ctValCcy"`
	SettleCcy string `json:"settleCcy"`
	LotSz     string `json:"lotSz"`
	MinSz     string `json:"minSz"`
	TickSz    string `json:"tickSz"`
	CtType    string `json:"ctType"` // linear | inverse
}
