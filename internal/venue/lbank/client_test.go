package lbank

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

func envelope(data interface{}) []byte {
	raw, _ := json.Marshal(data)
	out, _ := json.Marshal(map[string]interface{}{
		"result":     true,
		"error_code": 0,
		"msg":        "",
		"data":       json.RawMessage(raw),
	})
	return out
}

func catalogBody() []byte {
	return envelope([]InstrumentData{{
		Symbol:         "GPSUSDT",
		BaseCurrency:   "gps",
		ClearCurrency:  "usdt",
		MinOrderVolume: 1,
		VolumeTick:     1,
		PriceTick:      0.0001,
		VolumeMultiple: 10,
	}})
}

func TestNormalizeSymbol(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	assert.Equal(t, "BTCUSDT", c.NormalizeSymbol("btc"))
	assert.Equal(t, "BTCUSDT", c.NormalizeSymbol("BTC-USDT"))
	assert.Equal(t, "BTCUSDT", c.NormalizeSymbol("btc_usdt"))
}

func TestFuturesTickerAndFunding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EndpointInstrument:
			assert.Equal(t, "SwapU", r.URL.Query().Get("productGroup"))
			w.Write(catalogBody())
		case EndpointMarketData:
			assert.Equal(t, "GPSUSDT", r.URL.Query().Get("symbol"))
			w.Write(envelope([]MarketData{{
				Symbol:          "GPSUSDT",
				LastPrice:       "1.2346",
				BestBidPrice:    "1.2345",
				BestAskPrice:    "1.2347",
				PositionFeeRate: "0.0003",
				PositionFeeTime: "1700000000000",
			}}))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	tk, err := c.FuturesTicker(context.Background(), "GPS")
	require.NoError(t, err)
	require.NotNil(t, tk)
	assert.Equal(t, 1.2346, tk.Price)
	assert.Equal(t, 1.2345, tk.Bid)
	assert.Equal(t, 1.2347, tk.Ask)

	fi, err := c.FundingInfo(context.Background(), "GPS")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, 0.0003, fi.Rate)
	assert.Equal(t, int64(1700000000000), fi.NextFundingTime)
}

func TestUnknownSymbol(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointInstrument, r.URL.Path)
		w.Write(catalogBody())
	})
	tk, err := c.FuturesTicker(context.Background(), "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, tk)
}

func TestOrderbookDepth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EndpointInstrument:
			w.Write(catalogBody())
		case EndpointDepth:
			assert.Equal(t, "GPSUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "50", r.URL.Query().Get("depth"))
			w.Write(envelope(map[string]interface{}{
				"bids": [][2]string{{"1.09", "2"}, {"1.10", "5"}},
				"asks": [][2]string{{"1.12", "7"}},
			}))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ob, err := c.Orderbook(context.Background(), "GPS", 50)
	require.NoError(t, err)
	require.NotNil(t, ob)
	assert.Equal(t, 1.10, ob.BestBid()) // resorted descending
	assert.Equal(t, 1.12, ob.BestAsk())
	assert.Equal(t, 5.0, ob.Bids[0].Size)
}

func TestOrderbookDepthBlockedFallsBack(t *testing.T) {
	var depthHits, marketOrderHits int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EndpointInstrument:
			w.Write(catalogBody())
		case EndpointDepth:
			depthHits++
			w.WriteHeader(http.StatusForbidden)
		case EndpointMarketOrder:
			marketOrderHits++
			assert.Equal(t, "GPSUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "50", r.URL.Query().Get("depth"))
			w.Write(envelope(MarketOrderData{
				Bids: []OrderLevel{
					{Price: "1.2345", Volume: 100, Orders: 3},
					{Price: "1.2344", Volume: 50, Orders: 1},
				},
				Asks: []OrderLevel{{Price: "1.2347", Volume: 70, Orders: 2}},
			}))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ob, err := c.Orderbook(context.Background(), "GPS", 50)
	require.NoError(t, err)
	require.NotNil(t, ob)
	assert.Equal(t, 1.2345, ob.BestBid())
	assert.Equal(t, 1.2347, ob.BestAsk())
	assert.Equal(t, 100.0, ob.Bids[0].Size)

	// the block is sticky: the second call goes straight to marketOrder
	_, err = c.Orderbook(context.Background(), "GPS", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, depthHits)
	assert.Equal(t, 2, marketOrderHits)
}

func TestInstrumentAppliesMultiplier(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(catalogBody())
	})
	inst, err := c.Instrument(context.Background(), "GPS")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "GPS", inst.BaseCoin)
	assert.Equal(t, 10.0, inst.QtyStep)
	assert.Equal(t, 10.0, inst.MinOrderQty)
	assert.Equal(t, 10.0, inst.QuantoMultiplier)
	assert.Equal(t, 0.0001, inst.TickSize)
}

func TestAllFuturesCoins(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(envelope([]InstrumentData{
			{Symbol: "GPSUSDT", BaseCurrency: "gps"},
			{Symbol: "BTCUSDT", BaseCurrency: "btc"},
			{Symbol: "ETHUSDT"},
		}))
	})
	coins, err := c.AllFuturesCoins(context.Background())
	require.NoError(t, err)
	assert.Len(t, coins, 3)
	assert.Contains(t, coins, "GPS")
	assert.Contains(t, coins, "BTC")
	assert.Contains(t, coins, "ETH") // base derived from symbol when missing
}
