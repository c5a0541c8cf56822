package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	BaseURLPrimary  = "https://contract.mexc.com"
	BaseURLFallback = "https://futures.mexc.com"

	EndpointTicker      = "/api/v1/contract/ticker"
	EndpointFundingRate = "/api/v1/contract/funding_rate"
	EndpointDepth       = "/api/v1/contract/depth"
	EndpointDetail      = "/api/v1/contract/detail"

	tickerCacheTTL  = 2 * time.Second
	fundingCacheTTL = 5 * time.Second
	maxInFlight     = 5
)

// notFoundCodes: symbol unknown to the contract API.
var notFoundCodes = map[int]bool{
	510:  true,
	1001: true,
}

// staticAliases seeds the coin->contract alias table; the rest is learned
// from the catalog when a lookup misses.
var staticAliases = map[string]string{
	"FUN": "SPORTFUN_USDT",
}

// Client is the MEXC contract API client. One bulk request feeds the
// per-symbol ticker and funding reads through short-TTL caches, which keeps
// the venue's aggressive WAF quiet during wide scans.
type Client struct {
	tr *venue.Transport

	mu           sync.Mutex
	aliases      map[string]string
	tickerCache  map[string]TickerData
	tickerAt     time.Time
	fundingCache map[string]FundingData
	fundingAt    time.Time
	aliasLoaded  bool
}

// Config holds MEXC client configuration.
type Config struct {
	BaseURL     string
	FallbackURL string
}

// New creates a MEXC client with domain failover.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURLPrimary
	}
	if cfg.FallbackURL == "" {
		cfg.FallbackURL = BaseURLFallback
	}
	aliases := make(map[string]string, len(staticAliases))
	for k, v := range staticAliases {
		aliases[k] = v
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:       venue.MEXC,
			Hosts:       []string{cfg.BaseURL, cfg.FallbackURL},
			Retries:     1,
			MaxInFlight: maxInFlight,
		}),
		aliases:      aliases,
		tickerCache:  make(map[string]TickerData),
		fundingCache: make(map[string]FundingData),
	}
}

func (c *Client) ID() venue.ID { return venue.MEXC }

// NormalizeSymbol maps BTC to BTC_USDT unless an alias overrides it.
func (c *Client) NormalizeSymbol(coin string) string {
	coin = strings.ToUpper(coin)
	c.mu.Lock()
	alias, ok := c.aliases[coin]
	c.mu.Unlock()
	if ok {
		return alias
	}
	return coin + "_USDT"
}

func (c *Client) Close() error {
	c.tr.Close()
	return nil
}

func (c *Client) getData(ctx context.Context, path string, out interface{}) (bool, error) {
	var env APIResponse
	if err := c.tr.GetJSON(ctx, path, nil, &env); err != nil {
		return false, err
	}
	if !env.Success && env.Code != 0 {
		if notFoundCodes[env.Code] {
			return false, nil
		}
		return false, venue.NewError(venue.MEXC, venue.KindProtocol, path,
			fmt.Errorf("code %d: %s", env.Code, env.Message))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, venue.NewError(venue.MEXC, venue.KindProtocol, path, err)
	}
	return true, nil
}

// refreshTickers repopulates the bulk ticker cache when it is older than TTL.
// Callers must not hold the mutex.
func (c *Client) refreshTickers(ctx context.Context) error {
	c.mu.Lock()
	fresh := time.Since(c.tickerAt) < tickerCacheTTL
	c.mu.Unlock()
	if fresh {
		return nil
	}
	var list []TickerData
	if ok, err := c.getData(ctx, EndpointTicker, &list); err != nil || !ok {
		return err
	}
	cache := make(map[string]TickerData, len(list))
	for _, t := range list {
		cache[t.Symbol] = t
	}
	c.mu.Lock()
	c.tickerCache = cache
	c.tickerAt = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) refreshFunding(ctx context.Context) error {
	c.mu.Lock()
	fresh := time.Since(c.fundingAt) < fundingCacheTTL
	c.mu.Unlock()
	if fresh {
		return nil
	}
	var list []FundingData
	if ok, err := c.getData(ctx, EndpointFundingRate, &list); err != nil || !ok {
		return err
	}
	cache := make(map[string]FundingData, len(list))
	for _, f := range list {
		cache[f.Symbol] = f
	}
	c.mu.Lock()
	c.fundingCache = cache
	c.fundingAt = time.Now()
	c.mu.Unlock()
	return nil
}

// refreshAliases learns coin->symbol mappings from the catalog, covering
// contracts whose base coin does not match the symbol prefix.
func (c *Client) refreshAliases(ctx context.Context) error {
	var list []ContractDetail
	if ok, err := c.getData(ctx, EndpointDetail, &list); err != nil || !ok {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range list {
		base := strings.ToUpper(d.BaseCoin)
		if base == "" || d.Symbol == base+"_USDT" {
			continue
		}
		if !strings.HasSuffix(d.Symbol, "_USDT") {
			continue
		}
		c.aliases[base] = d.Symbol
	}
	c.aliasLoaded = true
	log.Debug().Int("aliases", len(c.aliases)).Msg("MEXC alias table refreshed")
	return nil
}

// FuturesTicker reads from the bulk cache, reloading the alias table once
// when a symbol misses.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	if err := c.refreshTickers(ctx); err != nil {
		return nil, err
	}
	symbol := c.NormalizeSymbol(coin)
	c.mu.Lock()
	t, ok := c.tickerCache[symbol]
	loaded := c.aliasLoaded
	c.mu.Unlock()
	if !ok && !loaded {
		if err := c.refreshAliases(ctx); err != nil {
			return nil, err
		}
		symbol = c.NormalizeSymbol(coin)
		c.mu.Lock()
		t, ok = c.tickerCache[symbol]
		c.mu.Unlock()
	}
	if !ok {
		return nil, nil
	}
	return venue.SanityClampTicker(&venue.Ticker{
		Price: t.LastPrice,
		Bid:   t.Bid1,
		Ask:   t.Ask1,
	}), nil
}

// FundingInfo reads from the bulk funding cache.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	if err := c.refreshFunding(ctx); err != nil {
		return nil, err
	}
	symbol := c.NormalizeSymbol(coin)
	c.mu.Lock()
	f, ok := c.fundingCache[symbol]
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return &venue.FundingInfo{
		Rate:            f.FundingRate,
		NextFundingTime: venue.NormalizeEpochMS(f.NextSettleTime),
	}, nil
}

// Orderbook fetches depth/{symbol}. Levels are [price, volume, count].
func (c *Client) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	path := EndpointDepth + "/" + c.NormalizeSymbol(coin)
	var res DepthData
	ok, err := c.getData(ctx, path, &res)
	if err != nil || !ok {
		return nil, err
	}
	toRaw := func(levels [][]float64) []venue.RawLevel {
		out := make([]venue.RawLevel, 0, len(levels))
		for _, lv := range levels {
			if len(lv) < 2 {
				continue
			}
			out = append(out, venue.NewRawLevel(lv[0], lv[1]))
		}
		return out
	}
	return venue.NormalizeBook(toRaw(res.Bids), toRaw(res.Asks), depth), nil
}

// Instrument fetches lot filters from the per-symbol detail endpoint.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	symbol := c.NormalizeSymbol(coin)
	var res ContractDetail
	ok, err := c.getData(ctx, EndpointDetail+"?symbol="+symbol, &res)
	if err != nil || !ok {
		return nil, err
	}
	return &venue.Instrument{
		Symbol:           res.Symbol,
		BaseCoin:         strings.ToUpper(res.BaseCoin),
		QuoteCoin:        res.QuoteCoin,
		SettleCoin:       res.SettleCoin,
		Status:           fmt.Sprintf("%d", res.State),
		QtyStep:          res.VolUnit * res.ContractSize,
		MinOrderQty:      res.MinVol * res.ContractSize,
		TickSize:         res.PriceUnit,
		QuantoMultiplier: res.ContractSize,
	}, nil
}

// AllFuturesCoins lists enabled USDT perpetual bases from the catalog.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	var list []ContractDetail
	if ok, err := c.getData(ctx, EndpointDetail, &list); err != nil || !ok {
		return nil, err
	}
	coins := make(map[string]struct{}, len(list))
	for _, d := range list {
		if d.State != 0 || d.QuoteCoin != "USDT" {
			continue
		}
		coins[strings.ToUpper(d.BaseCoin)] = struct{}{}
	}
	log.Debug().Int("coins", len(coins)).Msg("MEXC futures catalog loaded")
	return coins, nil
}

var _ venue.Adapter = (*Client)(nil)
