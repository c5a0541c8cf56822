package xt

import "encoding/json"

// APIResponse is the futures API envelope; success is returnCode 0.
type APIResponse struct {
	ReturnCode int             `json:"returnCode"`
	MsgInfo    string          `json:"msgInfo"`
	Result     json.RawMessage `json:"result"`
}

// AggTicker is /future/market/v1/public/q/agg-ticker: last plus best bid/ask.
type AggTicker struct {
	Symbol string `json:"s"`
	Last   string `json:"c"`
	BidPx  string `json:"bp"`
	AskPx  string `json:"ap"`
	Vol    string `json:"v"`
}

// FundingRateResult is /future/market/v1/public/q/funding-rate.
type FundingRateResult struct {
	Symbol             string `json:"symbol"`
	FundingRate        string `json:"fundingRate"`
	NextCollectionTime int64  `json:"nextCollectionTime"` // epoch ms
	CollectionInternal int64  `json:"collectionInternal"` // hours
}

// CGOrderbook is /future/market/v1/public/cg/orderbook, the CoinGecko-style
// depth feed. Levels are ["price","qty"] pairs.
type CGOrderbook struct {
	TickerID  string      `json:"ticker_id"`
	Timestamp int64       `json:"timestamp"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
}

// SymbolDetail is one entry of /future/market/v1/public/symbol/list.
type SymbolDetail struct {
	Symbol            string `json:"symbol"` // btc_usdt
	BaseCoin          string `json:"baseCoin"`
	QuoteCoin         string `json:"quoteCoin"`
	State             int    `json:"state"` // 1 = online
	ContractType      string `json:"contractType"`
	ContractSize      string `json:"contractSize"`
	MinQty            string `json:"minQty"`
	PricePrecision    int    `json:"pricePrecision"`
	QuantityPrecision int    `json:"quantityPrecision"`
}
