package bybitws

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

func wsServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvFrame(t *testing.T, ch <-chan wsFrame) wsFrame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return wsFrame{}
	}
}

func TestPrivateStreamHandshake(t *testing.T) {
	got := make(chan wsFrame, 2)
	srv := wsServer(t, func(conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			var f wsFrame
			if conn.ReadJSON(&f) != nil {
				return
			}
			got <- f
		}
		_ = conn.WriteJSON(map[string]interface{}{"op": "auth", "success": true})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ps := NewPrivateStream("test-key", "test-secret")
	ps.url = wsURL(srv)
	require.NoError(t, ps.Start(context.Background()))
	defer ps.Stop()

	auth := recvFrame(t, got)
	assert.Equal(t, "auth", auth.Op)
	require.Len(t, auth.Args, 3)
	assert.Equal(t, "test-key", auth.Args[0])
	h := hmac.New(sha256.New, []byte("test-secret"))
	h.Write([]byte("GET/realtime" + auth.Args[1]))
	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), auth.Args[2])

	sub := recvFrame(t, got)
	assert.Equal(t, "subscribe", sub.Op)
	assert.Equal(t, []string{"order", "execution", "position"}, sub.Args)

	require.Eventually(t, func() bool {
		ps.mu.RLock()
		defer ps.mu.RUnlock()
		return ps.authenticated
	}, 2*time.Second, 10*time.Millisecond, "auth ack not applied")
}

func TestAuthRejectedLeavesUnauthenticated(t *testing.T) {
	ps := NewPrivateStream("k", "s")
	ps.handleMessage([]byte(`{"op":"auth","success":false}`))
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	assert.False(t, ps.authenticated)
}

func TestWaitForFinalDeliversTerminalUpdate(t *testing.T) {
	ps := NewPrivateStream("k", "s")

	type result struct {
		u   *OrderUpdate
		err error
	}
	res := make(chan result, 1)
	go func() {
		u, err := ps.WaitForFinal(context.Background(), "oid-1")
		res <- result{u, err}
	}()
	require.Eventually(t, func() bool {
		ps.waiterMu.Lock()
		defer ps.waiterMu.Unlock()
		_, ok := ps.waiters["oid-1"]
		return ok
	}, time.Second, 5*time.Millisecond)

	ps.handleMessage([]byte(`{"topic":"order","data":[{"orderId":"oid-1","symbol":"BTCUSDT","side":"Buy","orderStatus":"PartiallyFilled","qty":"0.5","cumExecQty":"0.2","avgPrice":"50000"}]}`))
	select {
	case r := <-res:
		t.Fatalf("non-terminal update resolved the waiter: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	ps.handleMessage([]byte(`{"topic":"order","data":[{"orderId":"oid-1","symbol":"BTCUSDT","side":"Buy","orderStatus":"Filled","qty":"0.5","cumExecQty":"0.5","avgPrice":"50000.5"}]}`))
	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, "Filled", r.u.Status)
		assert.True(t, r.u.Final())
		assert.Equal(t, 0.5, r.u.Qty)
		assert.Equal(t, 0.5, r.u.CumExecQty)
		assert.Equal(t, 50000.5, r.u.AvgPrice)
	case <-time.After(time.Second):
		t.Fatal("terminal update not delivered")
	}
}

func TestPositionFlatReportZeroesSiblingSlots(t *testing.T) {
	ps := NewPrivateStream("k", "s")

	ps.handleMessage([]byte(`{"topic":"position","data":[{"symbol":"BTCUSDT","positionIdx":0,"side":"Buy","size":"0.5"}]}`))

	entry, ok := ps.Position("BTCUSDT", 0, "Buy")
	require.True(t, ok)
	assert.Equal(t, 0.5, entry.Size)
	total, _, found := ps.NetExposure("BTCUSDT")
	require.True(t, found)
	assert.Equal(t, 0.5, total)

	// the venue reports the close with size 0 and an empty side, so the
	// update lands under a different key than the open did
	ps.handleMessage([]byte(`{"topic":"position","data":[{"symbol":"BTCUSDT","positionIdx":0,"side":"","size":"0"}]}`))

	total, _, found = ps.NetExposure("BTCUSDT")
	require.True(t, found)
	assert.Equal(t, 0.0, total)
	entry, ok = ps.Position("BTCUSDT", 0, "Buy")
	require.True(t, ok)
	assert.Equal(t, 0.0, entry.Size)

	_, _, found = ps.NetExposure("ETHUSDT")
	assert.False(t, found)
}

func TestNetExposureSumsBothLegs(t *testing.T) {
	ps := NewPrivateStream("k", "s")
	ps.handleMessage([]byte(`{"topic":"position","data":[{"symbol":"GPSUSDT","positionIdx":1,"side":"Buy","size":"10"},{"symbol":"GPSUSDT","positionIdx":2,"side":"Sell","size":"-10"}]}`))

	total, _, found := ps.NetExposure("GPSUSDT")
	require.True(t, found)
	assert.Equal(t, 20.0, total)
}

func TestAwaitPositionChangeFiresOnFlatReport(t *testing.T) {
	ps := NewPrivateStream("k", "s")
	ps.handleMessage([]byte(`{"topic":"position","data":[{"symbol":"BTCUSDT","positionIdx":0,"side":"Buy","size":"0.5"}]}`))

	type result struct {
		entry PositionEntry
		err   error
	}
	res := make(chan result, 1)
	go func() {
		entry, err := ps.AwaitPositionChange(context.Background(), "BTCUSDT", 0, "Buy")
		res <- result{entry, err}
	}()
	require.Eventually(t, func() bool {
		ps.waiterMu.Lock()
		defer ps.waiterMu.Unlock()
		return len(ps.posWaiters[PositionKey("BTCUSDT", 0, "Buy")]) == 1
	}, time.Second, 5*time.Millisecond)

	ps.handleMessage([]byte(`{"topic":"position","data":[{"symbol":"BTCUSDT","positionIdx":0,"side":"","size":"0"}]}`))

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, 0.0, r.entry.Size)
	case <-time.After(time.Second):
		t.Fatal("flat report did not fire the waiter")
	}
}

func TestAwaitPositionChangeEndsOnStop(t *testing.T) {
	ps := NewPrivateStream("k", "s")
	res := make(chan error, 1)
	go func() {
		_, err := ps.AwaitPositionChange(context.Background(), "BTCUSDT", 0, "Buy")
		res <- err
	}()
	require.Eventually(t, func() bool {
		ps.waiterMu.Lock()
		defer ps.waiterMu.Unlock()
		return len(ps.posWaiters) == 1
	}, time.Second, 5*time.Millisecond)

	ps.Stop()

	select {
	case err := <-res:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "private stream closed")
	case <-time.After(time.Second):
		t.Fatal("Stop did not release the waiter")
	}
}

func TestPositionUpdatesCoalesce(t *testing.T) {
	ps := NewPrivateStream("k", "s")
	for i := 0; i < 3; i++ {
		ps.handleMessage([]byte(`{"topic":"position","data":[{"symbol":"BTCUSDT","positionIdx":0,"side":"Buy","size":"1"}]}`))
	}
	select {
	case <-ps.PositionUpdates():
	default:
		t.Fatal("expected a pending update signal")
	}
	select {
	case <-ps.PositionUpdates():
		t.Fatal("signals must coalesce into one")
	default:
	}
}

func TestStalenessTracksLastMessage(t *testing.T) {
	ps := NewPrivateStream("k", "s")
	_, ok := ps.Staleness()
	assert.False(t, ok)

	ps.handleMessage([]byte(`{"op":"pong"}`))
	age, ok := ps.Staleness()
	require.True(t, ok)
	assert.Less(t, age, time.Second)
}
