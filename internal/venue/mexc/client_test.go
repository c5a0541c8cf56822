package mexc

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
	c := New(Config{BaseURL: srv.URL, FallbackURL: srv.URL})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func success(data interface{}) []byte {
	raw, _ := json.Marshal(data)
	out, _ := json.Marshal(map[string]interface{}{
		"success": true,
		"code":    0,
		"data":    json.RawMessage(raw),
	})
	return out
}

func TestNormalizeSymbolAlias(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	assert.Equal(t, "BTC_USDT", c.NormalizeSymbol("btc"))
	assert.Equal(t, "SPORTFUN_USDT", c.NormalizeSymbol("FUN"), "static alias wins")
}

func TestFuturesTickerBulkCache(t *testing.T) {
	var hits int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EndpointTicker, r.URL.Path)
		hits++
		w.Write(success([]TickerData{
			{Symbol: "BTC_USDT", LastPrice: 50000, Bid1: 49999, Ask1: 50001},
			{Symbol: "ETH_USDT", LastPrice: 3000, Bid1: 2999, Ask1: 3001},
		}))
	})

	tk, err := c.FuturesTicker(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, tk)
	assert.Equal(t, 49999.0, tk.Bid)

	// second symbol within the TTL reuses the bulk payload
	tk, err = c.FuturesTicker(context.Background(), "ETH")
	require.NoError(t, err)
	require.NotNil(t, tk)
	assert.Equal(t, 2999.0, tk.Bid)
	assert.Equal(t, 1, hits, "one bulk request serves both symbols")
}

func TestFuturesTickerLearnsAlias(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EndpointTicker:
			w.Write(success([]TickerData{
				{Symbol: "RENAMED_USDT", LastPrice: 2, Bid1: 1.99, Ask1: 2.01},
			}))
		case EndpointDetail:
			w.Write(success([]ContractDetail{
				{Symbol: "RENAMED_USDT", BaseCoin: "OLD", QuoteCoin: "USDT"},
			}))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	tk, err := c.FuturesTicker(context.Background(), "OLD")
	require.NoError(t, err)
	require.NotNil(t, tk, "alias learned from the catalog on first miss")
	assert.Equal(t, 1.99, tk.Bid)
}

func TestFundingInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(success([]FundingData{
			{Symbol: "BTC_USDT", FundingRate: -0.0002, NextSettleTime: 1_700_000_000_000},
		}))
	})
	fi, err := c.FundingInfo(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, fi)
	assert.Equal(t, -0.0002, fi.Rate)
	assert.Equal(t, int64(1_700_000_000_000), fi.NextFundingTime)

	fi, err = c.FundingInfo(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.Nil(t, fi)
}

func TestOrderbookTriplets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointDepth+"/BTC_USDT", r.URL.Path)
		w.Write(success(DepthData{
			Bids: [][]float64{{49999, 1.5, 3}, {49998, 2, 1}},
			Asks: [][]float64{{50001, 1, 2}},
		}))
	})
	ob, err := c.Orderbook(context.Background(), "BTC", 10)
	require.NoError(t, err)
	require.NotNil(t, ob)
	assert.Equal(t, 49999.0, ob.BestBid())
	assert.Equal(t, 1.5, ob.Bids[0].Size)
	assert.Equal(t, 50001.0, ob.BestAsk())
}

func TestNotFoundCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"code":510,"message":"Contract not activated"}`))
	})
	ob, err := c.Orderbook(context.Background(), "NOPE", 10)
	assert.NoError(t, err)
	assert.Nil(t, ob)
}

func TestAllFuturesCoins(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(success([]ContractDetail{
			{Symbol: "BTC_USDT", BaseCoin: "BTC", QuoteCoin: "USDT", State: 0},
			{Symbol: "PAUSED_USDT", BaseCoin: "PAUSED", QuoteCoin: "USDT", State: 2},
			{Symbol: "BTC_USDC", BaseCoin: "BTC", QuoteCoin: "USDC", State: 0},
		}))
	})
	coins, err := c.AllFuturesCoins(context.Background())
	require.NoError(t, err)
	assert.Len(t, coins, 1)
	assert.Contains(t, coins, "BTC")
}
