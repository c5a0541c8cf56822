package lbank

import (
	"encoding/json"

	"arbscan/internal/venue"
)

// APIResponse is the cfd openApi envelope.
type APIResponse struct {
	Result    bool            `json:"result"`
	ErrorCode int             `json:"error_code"`
	Msg       string          `json:"msg"`
	Data      json.RawMessage `json:"data"`
}

// InstrumentData is one entry of /cfd/openApi/v1/pub/instrument.
type InstrumentData struct {
	Symbol         string  `json:"symbol"` // BTCUSDT
	BaseCurrency   string  `json:"baseCurrency"`
	ClearCurrency  string  `json:"clearCurrency"`
	MinOrderVolume float64 `json:"minOrderVolume"`
	VolumeTick     float64 `json:"volumeTick"`
	PriceTick      float64 `json:"priceTick"`
	VolumeMultiple float64 `json:"volumeMultiple"`
	ExchangeID     string  `json:"exchangeID"`
}

// MarketData is one entry of /cfd/openApi/v1/pub/marketData.
type MarketData struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	BestBidPrice    string `json:"bestBidPrice"`
	BestAskPrice    string `json:"bestAskPrice"`
	PositionFeeRate string `json:"positionFeeRate"` // funding rate
	PositionFeeTime string `json:"positionFeeTime"` // next payout, epoch ms
	Volume          string `json:"volume"`
}

// OrderLevel is one level of /cfd/openApi/v1/pub/marketOrder.
type OrderLevel struct {
	Price  string  `json:"price"`
	Volume float64 `json:"volume"`
	Orders int     `json:"orders"`
}

// MarketOrderData is the marketOrder payload, the depth fallback used
// because the plain depth endpoint sits behind Cloudflare.
type MarketOrderData struct {
	Bids []OrderLevel `json:"bids"`
	Asks []OrderLevel `json:"asks"`
}

// DepthData is the plain depth payload. Levels arrive as [price, size]
// pairs; RawLevel absorbs the shape differences.
type DepthData struct {
	Bids []venue.RawLevel `json:"bids"`
	Asks []venue.RawLevel `json:"asks"`
}
