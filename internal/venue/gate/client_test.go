package gate

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

func writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

func TestNormalizeSymbolAliases(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	assert.Equal(t, "BTC_USDT", c.NormalizeSymbol("btc"))
	assert.Equal(t, "SPORTFUN_USDT", c.NormalizeSymbol("FUN"))
}

func TestFuturesTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EndpointTickers, r.URL.Path)
		assert.Equal(t, "BTC_USDT", r.URL.Query().Get("contract"))
		writeJSON(w, []TickerInfo{{
			Contract:   "BTC_USDT",
			Last:       "50000",
			HighestBid: "49999",
			LowestAsk:  "50001",
		}})
	})
	tk, err := c.FuturesTicker(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, tk)
	assert.Equal(t, 49999.0, tk.Bid)
	assert.Equal(t, 50001.0, tk.Ask)
}

func TestContractNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, APIError{Label: "CONTRACT_NOT_FOUND", Message: "contract not found"})
	})
	tk, err := c.FuturesTicker(context.Background(), "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, tk)

	fi, err := c.FundingInfo(context.Background(), "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, fi)
}

func TestOrderbookQuantoScaling(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case EndpointContracts + "/DOGE_USDT":
			writeJSON(w, ContractInfo{
				Name:             "DOGE_USDT",
				QuantoMultiplier: "10",
				OrderSizeMin:     1,
				OrderPriceRound:  "0.00001",
			})
		case EndpointOrderBook:
			writeJSON(w, BookResult{
				Bids: []BookLevel{{Price: "0.1", Size: 5}}, // 5 contracts = 50 DOGE
				Asks: []BookLevel{{Price: "0.10002", Size: 3}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	ob, err := c.Orderbook(context.Background(), "DOGE", 10)
	require.NoError(t, err)
	require.NotNil(t, ob)
	assert.Equal(t, 50.0, ob.Bids[0].Size)
	assert.Equal(t, 30.0, ob.Asks[0].Size)
}

func TestInstrument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ContractInfo{
			Name:             "DOGE_USDT",
			Type:             "direct",
			QuantoMultiplier: "10",
			OrderSizeMin:     1,
			OrderPriceRound:  "0.00001",
			Status:           "trading",
		})
	})
	inst, err := c.Instrument(context.Background(), "DOGE")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, 10.0, inst.QtyStep, "one contract in base units")
	assert.Equal(t, 10.0, inst.MinOrderQty)
	assert.Equal(t, 0.00001, inst.TickSize)
	assert.Equal(t, 10.0, inst.QuantoMultiplier)
}

func TestAllFuturesCoinsSkipsDelisting(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []ContractInfo{
			{Name: "BTC_USDT"},
			{Name: "DOOMED_USDT", InDelisting: true},
			{Name: "ETH_USDT"},
		})
	})
	coins, err := c.AllFuturesCoins(context.Background())
	require.NoError(t, err)
	assert.Contains(t, coins, "BTC")
	assert.Contains(t, coins, "ETH")
	assert.NotContains(t, coins, "DOOMED")
}

func TestSignedRequestHeaders(t *testing.T) {
	var gotKey, gotSign, gotTS string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("KEY")
		gotSign = r.Header.Get("SIGN")
		gotTS = r.Header.Get("Timestamp")
		writeJSON(w, OrderInfo{ID: 42, Status: "finished"})
	})
	c.apiKey = "test-key"
	c.apiSecret = "test-secret"

	info, err := c.PlaceOrder(context.Background(), OrderRequest{
		Contract: "BTC_USDT",
		Size:     -3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.ID)
	assert.Equal(t, "test-key", gotKey)
	assert.Len(t, gotSign, 128, "hex-encoded HMAC-SHA512")
	assert.NotEmpty(t, gotTS)
}
