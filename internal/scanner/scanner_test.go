package scanner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/config"
	"arbscan/internal/evaluator"
	"arbscan/internal/sink"
	"arbscan/internal/venue"
)

type fakeAdapter struct {
	id    venue.ID
	coins map[string]struct{}
	tick  map[string]*venue.Ticker
}

func (f *fakeAdapter) ID() venue.ID                    { return f.id }
func (f *fakeAdapter) NormalizeSymbol(c string) string { return c + "USDT" }
func (f *fakeAdapter) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	return f.tick[coin], nil
}
func (f *fakeAdapter) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	t := f.tick[coin]
	if t == nil {
		return nil, nil
	}
	return &venue.OrderBook{
		Bids: []venue.Level{{Price: t.Bid, Size: 1000}},
		Asks: []venue.Level{{Price: t.Ask, Size: 1000}},
	}, nil
}
func (f *fakeAdapter) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	return nil, nil
}
func (f *fakeAdapter) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	return f.coins, nil
}
func (f *fakeAdapter) Close() error { return nil }

// captureSink records emitted messages.
type captureSink struct {
	mu       sync.Mutex
	messages []string
}

func (c *captureSink) EmitMessage(ctx context.Context, channel, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return nil
}

func (c *captureSink) EmitImage(ctx context.Context, channel string, image []byte, caption string) error {
	return nil
}

func coinSet(coins ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(coins))
	for _, c := range coins {
		out[c] = struct{}{}
	}
	return out
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.ScanTimeoutSec = 5
	cfg.ExchangeTimeoutSec = 5
	return cfg
}

func TestCollectUniverse(t *testing.T) {
	adapters := map[venue.ID]venue.Adapter{
		venue.Bybit: &fakeAdapter{id: venue.Bybit, coins: coinSet("BTC", "ETH", "1000PEPE")},
		venue.Gate:  &fakeAdapter{id: venue.Gate, coins: coinSet("BTC", "DOGE", "SKIPME")},
	}
	cfg := testConfig()
	cfg.ExcludeCoins = []string{"skipme"}

	s := New(adapters, evaluator.New(adapters, nil), cfg, sink.NewLogSink())
	u := s.CollectUniverse(context.Background())

	assert.Equal(t, []string{"BTC", "DOGE", "ETH"}, u.Coins,
		"digit-led and excluded coins drop out of the union")
	assert.True(t, u.Listed("BTC", venue.Bybit))
	assert.True(t, u.Listed("DOGE", venue.Gate))
	assert.False(t, u.Listed("DOGE", venue.Bybit))
	assert.False(t, u.Listed("BTC", venue.MEXC), "unknown venue is never listed")
}

func TestBatches(t *testing.T) {
	cfg := testConfig()
	cfg.CoinBatchSize = 2
	s := New(nil, nil, cfg, sink.NewLogSink())

	got := s.batches([]string{"A", "B", "C", "D", "E"})
	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B"}, got[0])
	assert.Equal(t, []string{"E"}, got[2])

	cfg.CoinBatchSize = 0
	s = New(nil, nil, cfg, sink.NewLogSink())
	got = s.batches([]string{"A", "B"})
	require.Len(t, got, 1)
}

func TestScanPricesOnceEmitsFavorable(t *testing.T) {
	adapters := map[venue.ID]venue.Adapter{
		venue.Bybit: &fakeAdapter{
			id:    venue.Bybit,
			coins: coinSet("BTC"),
			tick:  map[string]*venue.Ticker{"BTC": {Price: 100, Bid: 99.9, Ask: 100}},
		},
		venue.Gate: &fakeAdapter{
			id:    venue.Gate,
			coins: coinSet("BTC"),
			tick:  map[string]*venue.Ticker{"BTC": {Price: 103, Bid: 103, Ask: 103.1}},
		},
	}
	cfg := testConfig()
	cfg.MinSpread = 2.0

	out := &captureSink{}
	s := New(adapters, evaluator.New(adapters, nil), cfg, out)
	s.ScanPricesOnce(context.Background())

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.messages, 1, "one aggregated record per coin")
	assert.Contains(t, out.messages[0], "BTC Long (bybit), Short (gate)")
	assert.Contains(t, out.messages[0], "✅ арбитражить")
}

func TestScanPricesOnceBelowThresholdEmitsNothing(t *testing.T) {
	adapters := map[venue.ID]venue.Adapter{
		venue.Bybit: &fakeAdapter{
			id:    venue.Bybit,
			coins: coinSet("BTC"),
			tick:  map[string]*venue.Ticker{"BTC": {Price: 100, Bid: 99.9, Ask: 100}},
		},
		venue.Gate: &fakeAdapter{
			id:    venue.Gate,
			coins: coinSet("BTC"),
			tick:  map[string]*venue.Ticker{"BTC": {Price: 100.5, Bid: 100.5, Ask: 100.6}},
		},
	}
	cfg := testConfig()
	cfg.MinSpread = 2.0

	out := &captureSink{}
	s := New(adapters, evaluator.New(adapters, nil), cfg, out)
	s.ScanPricesOnce(context.Background())

	out.mu.Lock()
	defer out.mu.Unlock()
	assert.Empty(t, out.messages)
}
