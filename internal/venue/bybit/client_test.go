package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func envelope(result interface{}) []byte {
	raw, _ := json.Marshal(result)
	out, _ := json.Marshal(map[string]interface{}{
		"retCode": 0,
		"retMsg":  "OK",
		"result":  json.RawMessage(raw),
	})
	return out
}

func TestNormalizeSymbol(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	assert.Equal(t, "BTCUSDT", c.NormalizeSymbol("btc"))
	assert.Equal(t, "ETHUSDT", c.NormalizeSymbol("ETH"))
}

func TestFuturesTickerAndFunding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointTickers, r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write(envelope(TickersResult{List: []TickerInfo{{
			Symbol:          "BTCUSDT",
			LastPrice:       "50000",
			Bid1Price:       "49999.5",
			Ask1Price:       "50000.5",
			FundingRate:     "0.0001",
			NextFundingTime: "1700000000000",
		}}}))
	})

	tk, err := c.FuturesTicker(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, tk)
	assert.Equal(t, 50000.0, tk.Price)
	assert.Equal(t, 49999.5, tk.Bid)
	assert.Equal(t, 50000.5, tk.Ask)

	fi, err := c.FundingInfo(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, 0.0001, fi.Rate)
	assert.Equal(t, int64(1700000000000), fi.NextFundingTime)
}

func TestFuturesTickerUnknownSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error: symbol invalid","result":{}}`))
	})
	tk, err := c.FuturesTicker(context.Background(), "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, tk)
}

func TestOrderbook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointOrderbook, r.URL.Path)
		w.Write(envelope(OrderbookResult{
			Symbol: "BTCUSDT",
			Bids:   [][2]string{{"49999", "1.5"}, {"49998", "2"}},
			Asks:   [][2]string{{"50001", "1"}, {"50002", "3"}},
		}))
	})
	ob, err := c.Orderbook(context.Background(), "BTC", 10)
	require.NoError(t, err)
	require.NotNil(t, ob)
	assert.Equal(t, 49999.0, ob.BestBid())
	assert.Equal(t, 50001.0, ob.BestAsk())
	assert.Equal(t, 1.5, ob.Bids[0].Size)
}

func TestInstrument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		res := InstrumentsResult{List: []InstrumentInfo{{
			Symbol:    "BTCUSDT",
			Status:    "Trading",
			BaseCoin:  "BTC",
			QuoteCoin: "USDT",
		}}}
		res.List[0].PriceFilter.TickSize = "0.5"
		res.List[0].LotSizeFilter.QtyStep = "0.001"
		res.List[0].LotSizeFilter.MinOrderQty = "0.001"
		res.List[0].LotSizeFilter.MinNotionalVal = "5"
		w.Write(envelope(res))
	})
	inst, err := c.Instrument(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, 0.5, inst.TickSize)
	assert.Equal(t, 0.001, inst.QtyStep)
	assert.Equal(t, 5.0, inst.MinNotional)
}

func TestAllFuturesCoins(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope(InstrumentsResult{List: []InstrumentInfo{
			{Symbol: "BTCUSDT", Status: "Trading", BaseCoin: "BTC", QuoteCoin: "USDT"},
			{Symbol: "ETHUSDT", Status: "Trading", BaseCoin: "ETH", QuoteCoin: "USDT"},
			{Symbol: "OLDUSDT", Status: "Closed", BaseCoin: "OLD", QuoteCoin: "USDT"},
			{Symbol: "BTCUSDC", Status: "Trading", BaseCoin: "BTC", QuoteCoin: "USDC"},
		}}))
	})
	coins, err := c.AllFuturesCoins(context.Background())
	require.NoError(t, err)
	assert.Len(t, coins, 2)
	assert.Contains(t, coins, "BTC")
	assert.Contains(t, coins, "ETH")
	assert.NotContains(t, coins, "OLD")
}

func TestSignedRequestHeaders(t *testing.T) {
	var gotKey, gotSign, gotWindow string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-BAPI-API-KEY")
		gotSign = r.Header.Get("X-BAPI-SIGN")
		gotWindow = r.Header.Get("X-BAPI-RECV-WINDOW")
		w.Write(envelope(OrderCreateResult{OrderID: "abc-123"}))
	})
	c.apiKey = "test-key"
	c.apiSecret = "test-secret"

	id, err := c.CreateOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: "Buy", OrderType: "Limit", Qty: "0.001", Price: "50000",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "test-key", gotKey)
	assert.NotEmpty(t, gotSign)
	assert.Equal(t, "5000", gotWindow)
}

func TestSetLeverageAlreadySet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`))
	})
	c.apiKey = "k"
	c.apiSecret = "s"
	assert.NoError(t, c.SetLeverage(context.Background(), "BTCUSDT", 1))
}
