package lbank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	BaseURL = "https://lbkperp.lbank.com"

	EndpointInstrument  = "/cfd/openApi/v1/pub/instrument"
	EndpointMarketData  = "/cfd/openApi/v1/pub/marketData"
	EndpointDepth       = "/cfd/openApi/v1/pub/depth"
	EndpointMarketOrder = "/cfd/openApi/v1/pub/marketOrder"

	productGroup       = "SwapU"
	instrumentCacheTTL = 5 * time.Minute
)

// Client is the LBank USDT-swap client. The instrument catalog is cached
// because every other call needs it to validate symbols.
type Client struct {
	tr *venue.Transport

	mu            sync.Mutex
	instruments   map[string]InstrumentData
	instrumentsAt time.Time
	depthBlocked  bool
}

// Config holds LBank client configuration.
type Config struct {
	BaseURL string
}

// New creates an LBank client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.LBank,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
		instruments: make(map[string]InstrumentData),
	}
}

func (c *Client) ID() venue.ID { return venue.LBank }

// NormalizeSymbol maps BTC, BTC-USDT and BTC_USDT all to BTCUSDT.
func (c *Client) NormalizeSymbol(coin string) string {
	s := strings.ToUpper(strings.NewReplacer("-", "", "_", "").Replace(coin))
	if !strings.HasSuffix(s, "USDT") {
		s += "USDT"
	}
	return s
}

func (c *Client) Close() error {
	c.tr.Close()
	return nil
}

func (c *Client) getData(ctx context.Context, endpoint string, params url.Values, out interface{}) (bool, error) {
	var env APIResponse
	if err := c.tr.GetJSON(ctx, endpoint, params, &env); err != nil {
		return false, err
	}
	if !env.Result && env.ErrorCode != 0 {
		return false, venue.NewError(venue.LBank, venue.KindProtocol, endpoint,
			fmt.Errorf("error_code %d: %s", env.ErrorCode, env.Msg))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, venue.NewError(venue.LBank, venue.KindProtocol, endpoint, err)
	}
	return true, nil
}

// catalog returns the instrument map, refreshing it at most every 5 minutes.
func (c *Client) catalog(ctx context.Context) (map[string]InstrumentData, error) {
	c.mu.Lock()
	if time.Since(c.instrumentsAt) < instrumentCacheTTL && len(c.instruments) > 0 {
		cached := c.instruments
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("productGroup", productGroup)
	var list []InstrumentData
	ok, err := c.getData(ctx, EndpointInstrument, params, &list)
	if err != nil || !ok {
		return nil, err
	}
	m := make(map[string]InstrumentData, len(list))
	for _, in := range list {
		m[c.NormalizeSymbol(in.Symbol)] = in
	}
	c.mu.Lock()
	c.instruments = m
	c.instrumentsAt = time.Now()
	c.mu.Unlock()
	log.Debug().Int("instruments", len(m)).Msg("LBank instrument catalog refreshed")
	return m, nil
}

func (c *Client) marketData(ctx context.Context, coin string) (*MarketData, error) {
	cat, err := c.catalog(ctx)
	if err != nil {
		return nil, err
	}
	symbol := c.NormalizeSymbol(coin)
	if _, listed := cat[symbol]; !listed {
		return nil, nil
	}
	params := url.Values{}
	params.Set("productGroup", productGroup)
	params.Set("symbol", symbol)
	var list []MarketData
	ok, err := c.getData(ctx, EndpointMarketData, params, &list)
	if err != nil || !ok {
		return nil, err
	}
	for i := range list {
		if c.NormalizeSymbol(list[i].Symbol) == symbol {
			return &list[i], nil
		}
	}
	return nil, nil
}

// FuturesTicker returns last/bid/ask from marketData.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	md, err := c.marketData(ctx, coin)
	if err != nil || md == nil {
		return nil, err
	}
	return venue.SanityClampTicker(&venue.Ticker{
		Price: venue.F(md.LastPrice),
		Bid:   venue.F(md.BestBidPrice),
		Ask:   venue.F(md.BestAskPrice),
	}), nil
}

// FundingInfo returns the position fee rate and next payout time.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	md, err := c.marketData(ctx, coin)
	if err != nil || md == nil {
		return nil, err
	}
	var next int64
	if v, err := strconv.ParseInt(md.PositionFeeTime, 10, 64); err == nil {
		next = venue.NormalizeEpochMS(v)
	}
	return &venue.FundingInfo{
		Rate:            venue.F(md.PositionFeeRate),
		NextFundingTime: next,
	}, nil
}

// Orderbook tries the plain depth endpoint once; Cloudflare blocks it for
// non-browser clients, so a WAF answer flips the client to marketOrder for
// the rest of its life.
func (c *Client) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	cat, err := c.catalog(ctx)
	if err != nil {
		return nil, err
	}
	symbol := c.NormalizeSymbol(coin)
	if _, listed := cat[symbol]; !listed {
		return nil, nil
	}
	params := url.Values{}
	params.Set("productGroup", productGroup)
	params.Set("symbol", symbol)
	params.Set("depth", strconv.Itoa(depth))

	c.mu.Lock()
	blocked := c.depthBlocked
	c.mu.Unlock()
	if !blocked {
		var res DepthData
		ok, err := c.getData(ctx, EndpointDepth, params, &res)
		if err == nil && ok {
			return venue.NormalizeBook(res.Bids, res.Asks, depth), nil
		}
		if err != nil {
			if venue.KindOf(err) != venue.KindWAFBlocked {
				return nil, err
			}
			c.mu.Lock()
			c.depthBlocked = true
			c.mu.Unlock()
			log.Debug().Msg("LBank depth endpoint blocked, switching to marketOrder")
		}
	}

	var res MarketOrderData
	ok, err := c.getData(ctx, EndpointMarketOrder, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	toRaw := func(levels []OrderLevel) []venue.RawLevel {
		out := make([]venue.RawLevel, 0, len(levels))
		for _, lv := range levels {
			out = append(out, venue.NewRawLevel(venue.F(lv.Price), lv.Volume))
		}
		return out
	}
	return venue.NormalizeBook(toRaw(res.Bids), toRaw(res.Asks), depth), nil
}

// Instrument maps the cached catalog entry.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	cat, err := c.catalog(ctx)
	if err != nil {
		return nil, err
	}
	in, listed := cat[c.NormalizeSymbol(coin)]
	if !listed {
		return nil, nil
	}
	mult := in.VolumeMultiple
	if mult <= 0 {
		mult = 1
	}
	return &venue.Instrument{
		Symbol:           in.Symbol,
		BaseCoin:         strings.ToUpper(in.BaseCurrency),
		QuoteCoin:        "USDT",
		SettleCoin:       strings.ToUpper(in.ClearCurrency),
		Status:           "online",
		QtyStep:          in.VolumeTick * mult,
		MinOrderQty:      in.MinOrderVolume * mult,
		TickSize:         in.PriceTick,
		QuantoMultiplier: mult,
	}, nil
}

// AllFuturesCoins lists catalog bases.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	cat, err := c.catalog(ctx)
	if err != nil {
		return nil, err
	}
	coins := make(map[string]struct{}, len(cat))
	for _, in := range cat {
		base := strings.ToUpper(in.BaseCurrency)
		if base == "" {
			base = strings.TrimSuffix(c.NormalizeSymbol(in.Symbol), "USDT")
		}
		if base != "" {
			coins[base] = struct{}{}
		}
	}
	log.Debug().Int("coins", len(coins)).Msg("LBank futures catalog loaded")
	return coins, nil
}

var _ venue.Adapter = (*Client)(nil)
