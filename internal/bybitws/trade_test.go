package bybitws

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/venue"
)

func newTradeServer(t *testing.T, reply func(reqID string) map[string]interface{}) *httptest.Server {
	t.Helper()
	return wsServer(t, func(conn *websocket.Conn) {
		for {
			var req map[string]interface{}
			if conn.ReadJSON(&req) != nil {
				return
			}
			switch req["op"] {
			case "auth":
				_ = conn.WriteJSON(map[string]interface{}{"op": "auth", "retCode": 0, "success": true})
			case "ping":
				_ = conn.WriteJSON(map[string]string{"op": "pong"})
			case "order.create":
				reqID, _ := req["reqId"].(string)
				_ = conn.WriteJSON(reply(reqID))
			}
		}
	})
}

func TestTradeStreamCreateOrder(t *testing.T) {
	srv := newTradeServer(t, func(reqID string) map[string]interface{} {
		return map[string]interface{}{
			"op": "order.create", "reqId": reqID, "retCode": 0, "retMsg": "OK",
			"data": map[string]string{"orderId": "srv-oid-1"},
		}
	})
	ts := NewTradeStream("k", "s")
	ts.url = wsURL(srv)
	require.NoError(t, ts.Start(context.Background()))
	defer ts.Stop()
	assert.True(t, ts.IsConnected())

	resp, err := ts.CreateOrder(context.Background(), map[string]interface{}{
		"symbol": "BTCUSDT", "side": "Buy", "orderType": "Market", "qty": "0.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-oid-1", resp.OrderID)
	assert.Equal(t, 0, resp.RetCode)
	assert.Greater(t, resp.Latency, time.Duration(0))
}

func TestTradeStreamRejectedOrder(t *testing.T) {
	srv := newTradeServer(t, func(reqID string) map[string]interface{} {
		return map[string]interface{}{
			"op": "order.create", "reqId": reqID,
			"retCode": 110007, "retMsg": "ab not enough for new order",
		}
	})
	ts := NewTradeStream("k", "s")
	ts.url = wsURL(srv)
	require.NoError(t, ts.Start(context.Background()))
	defer ts.Stop()

	resp, err := ts.CreateOrder(context.Background(), map[string]interface{}{"symbol": "BTCUSDT"})
	require.Error(t, err)
	assert.Equal(t, venue.KindProtocol, venue.KindOf(err))
	require.NotNil(t, resp)
	assert.Equal(t, 110007, resp.RetCode)
}

func TestTradeStreamNotConnected(t *testing.T) {
	ts := NewTradeStream("k", "s")
	assert.False(t, ts.IsConnected())
	_, err := ts.CreateOrder(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, venue.KindTransient, venue.KindOf(err))
}

func TestTradeStreamDisconnectFailsPending(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		for {
			var req map[string]interface{}
			if conn.ReadJSON(&req) != nil {
				return
			}
			switch req["op"] {
			case "auth":
				_ = conn.WriteJSON(map[string]interface{}{"op": "auth", "success": true})
			case "order.create":
				// drop the connection instead of answering
				conn.Close()
				return
			}
		}
	})
	ts := NewTradeStream("k", "s")
	ts.url = wsURL(srv)
	require.NoError(t, ts.Start(context.Background()))
	defer ts.Stop()

	_, err := ts.CreateOrder(context.Background(), map[string]interface{}{"symbol": "BTCUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")
	assert.Equal(t, venue.KindTransient, venue.KindOf(err))
}

func TestTradeResponseCorrelation(t *testing.T) {
	ts := NewTradeStream("k", "s")
	ch := make(chan *TradeResponse, 1)
	ts.pendingMu.Lock()
	ts.pending["r1"] = ch
	ts.pendingMu.Unlock()

	// an unknown reqId must be dropped without touching the waiter
	ts.handleMessage([]byte(`{"op":"order.create","reqId":"zzz","retCode":0,"data":{"orderId":"other"}}`))
	select {
	case r := <-ch:
		t.Fatalf("foreign response delivered: %+v", r)
	default:
	}

	ts.handleMessage([]byte(`{"op":"order.create","reqId":"r1","retCode":0,"retMsg":"OK","data":{"orderId":"ord-9"}}`))
	select {
	case r := <-ch:
		require.NotNil(t, r)
		assert.Equal(t, "r1", r.ReqID)
		assert.Equal(t, "ord-9", r.OrderID)
	case <-time.After(time.Second):
		t.Fatal("correlated response not delivered")
	}
}
