package bybit

import "encoding/json"

// APIResponse is the common v5 envelope.
type APIResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// TickerInfo is one entry of /v5/market/tickers.
type TickerInfo struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	Bid1Price       string `json:"bid1Price"`
	Ask1Price       string `json:"ask1Price"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
	Volume24h       string `json:"volume24h"`
	Turnover24h     string `json:"turnover24h"`
}

// TickersResult is the result payload of /v5/market/tickers.
type TickersResult struct {
	Category string       `json:"category"`
	List     []TickerInfo `json:"list"`
}

// OrderbookResult is the result payload of /v5/market/orderbook.
type OrderbookResult struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	Ts     int64       `json:"ts"`
}

// InstrumentInfo is one entry of /v5/market/instruments-info.
type InstrumentInfo struct {
	Symbol       string `json:"symbol"`
	ContractType string `json:"contractType"`
	Status       string `json:"status"`
	BaseCoin     string `json:"baseCoin"`
	QuoteCoin    string `json:"quoteCoin"`
	SettleCoin   string `json:"settleCoin"`
	PriceFilter  struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		QtyStep        string `json:"qtyStep"`
		MinOrderQty    string `json:"minOrderQty"`
		MaxOrderQty    string `json:"maxOrderQty"`
		MinNotionalVal string `json:"minNotionalValue"`
	} `json:"lotSizeFilter"`
}

// InstrumentsResult is the result payload of /v5/market/instruments-info.
type InstrumentsResult struct {
	Category       string           `json:"category"`
	List           []InstrumentInfo `json:"list"`
	NextPageCursor string           `json:"nextPageCursor"`
}

// OrderCreateResult is the result payload of /v5/order/create.
type OrderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// OrderInfo is one entry of /v5/order/realtime and /v5/order/history.
type OrderInfo struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderStatus string `json:"orderStatus"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	AvgPrice    string `json:"avgPrice"`
	CumExecFee  string `json:"cumExecFee"`
	CreatedTime string `json:"createdTime"`
	UpdatedTime string `json:"updatedTime"`
}

// OrdersResult is the result payload of order list endpoints.
type OrdersResult struct {
	Category       string      `json:"category"`
	List           []OrderInfo `json:"list"`
	NextPageCursor string      `json:"nextPageCursor"`
}

// WalletBalanceResult is the result payload of /v5/account/wallet-balance.
type WalletBalanceResult struct {
	List []struct {
		AccountType    string `json:"accountType"`
		TotalEquity    string `json:"totalEquity"`
		TotalAvailable string `json:"totalAvailableBalance"`
		Coin           []struct {
			Coin                string `json:"coin"`
			WalletBalance       string `json:"walletBalance"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
			Equity              string `json:"equity"`
		} `json:"coin"`
	} `json:"list"`
}
