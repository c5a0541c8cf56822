package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/venue"
)

const listFixture = `<html><body><ul>
<li><a href="/en/announcement/123">GPS Perpetual Contract Will Be Delisted</a></li>
</ul></body></html>`

func newListServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(listFixture))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func overrideSources(t *testing.T, v venue.ID, urls ...string) {
	t.Helper()
	orig := listSources[v]
	listSources[v] = urls
	t.Cleanup(func() { listSources[v] = orig })
}

func TestCheckCoinServesFromCache(t *testing.T) {
	var hits int64
	srv := newListServer(t, &hits)
	overrideSources(t, venue.MEXC, srv.URL)
	overrideSources(t, venue.Gate, srv.URL)

	e := NewEngine(Options{DaysBack: 7, CacheTTL: time.Minute})

	first := e.CheckCoin(context.Background(), "GPS", venue.MEXC)
	require.NotNil(t, first)
	require.True(t, first.HasDelisting())
	assert.False(t, first.HasSecurity())
	assert.Equal(t, "GPS Perpetual Contract Will Be Delisted", first.Delisting[0].Title)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))

	second := e.CheckCoin(context.Background(), "GPS", venue.MEXC)
	assert.True(t, second.HasDelisting())
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits), "second lookup must come from cache")

	// another venue is another cache key
	other := e.CheckCoin(context.Background(), "GPS", venue.Gate)
	require.NotNil(t, other)
	assert.True(t, other.HasDelisting())
	assert.Equal(t, int64(2), atomic.LoadInt64(&hits))
}

func TestCheckCoinCacheExpires(t *testing.T) {
	var hits int64
	srv := newListServer(t, &hits)
	overrideSources(t, venue.MEXC, srv.URL)

	e := NewEngine(Options{CacheTTL: time.Millisecond})
	e.CheckCoin(context.Background(), "GPS", venue.MEXC)
	time.Sleep(10 * time.Millisecond)
	e.CheckCoin(context.Background(), "GPS", venue.MEXC)
	assert.Equal(t, int64(2), atomic.LoadInt64(&hits))
}

func TestCheckCoinFetchFailureDegradesToEmptyReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	overrideSources(t, venue.MEXC, srv.URL)

	e := NewEngine(Options{})
	report := e.CheckCoin(context.Background(), "GPS", venue.MEXC)
	require.NotNil(t, report)
	assert.False(t, report.HasDelisting())
	assert.False(t, report.HasSecurity())
}
