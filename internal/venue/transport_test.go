package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransport(hosts []string, retries int) *Transport {
	return NewTransport(TransportConfig{
		Venue:   Bybit,
		Hosts:   hosts,
		Retries: retries,
		Backoff: time.Millisecond,
	})
}

func TestRetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			// drop the connection mid-request so the client sees a
			// transport-level error, not an HTTP status
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := testTransport([]string{srv.URL}, 2)
	defer tr.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := tr.GetJSON(context.Background(), "/data", nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFailsOverToNextHost(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close() // connection refused from now on

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer live.Close()

	tr := testTransport([]string{deadURL, live.URL}, 0)
	defer tr.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := tr.GetJSON(context.Background(), "/data", nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestForbiddenNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr := testTransport([]string{srv.URL}, 3)
	defer tr.Close()

	err := tr.GetJSON(context.Background(), "/data", nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindWAFBlocked, KindOf(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "403 must surface immediately")
}

func TestRateLimitNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := testTransport([]string{srv.URL}, 3)
	defer tr.Close()

	err := tr.GetJSON(context.Background(), "/data", nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestProtocolErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := testTransport([]string{srv.URL}, 3)
	defer tr.Close()

	err := tr.GetJSON(context.Background(), "/data", nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindProtocol, KindOf(err))
	assert.Contains(t, err.Error(), "http 500")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := testTransport([]string{srv.URL}, 0)
	defer tr.Close()

	for i := 0; i < 8; i++ {
		err := tr.GetJSON(context.Background(), "/data", nil, nil)
		require.Error(t, err)
		assert.Equal(t, KindProtocol, KindOf(err))
	}
	assert.EqualValues(t, 8, atomic.LoadInt32(&hits))

	// tripped: the next call is rejected without reaching the venue
	err := tr.GetJSON(context.Background(), "/data", nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.EqualValues(t, 8, atomic.LoadInt32(&hits))
}

func TestDoSendsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Custom"))
		w.Write([]byte(`{"echo":"ok"}`))
	}))
	defer srv.Close()

	tr := testTransport([]string{srv.URL}, 0)
	defer tr.Close()

	var out struct {
		Echo string `json:"echo"`
	}
	err := tr.Do(context.Background(), http.MethodPost, "/submit", nil,
		[]byte(`{"a":1}`), map[string]string{"X-Custom": "v"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Echo)
}
