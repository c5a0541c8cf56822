package xt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	BaseURL = "https://fapi.xt.com"

	EndpointAggTicker   = "/future/market/v1/public/q/agg-ticker"
	EndpointFundingRate = "/future/market/v1/public/q/funding-rate"
	EndpointOrderbook   = "/future/market/v1/public/cg/orderbook"
	EndpointSymbolList  = "/future/market/v1/public/symbol/list"
)

// Client is the XT futures client. Symbols are lowercase coin_usdt.
type Client struct {
	tr *venue.Transport
}

// Config holds XT client configuration.
type Config struct {
	BaseURL string
}

// New creates an XT client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.XT,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
	}
}

func (c *Client) ID() venue.ID { return venue.XT }

// NormalizeSymbol maps BTC to btc_usdt.
func (c *Client) NormalizeSymbol(coin string) string {
	return strings.ToLower(coin) + "_usdt"
}

func (c *Client) Close() error {
	c.tr.Close()
	return nil
}

func (c *Client) getResult(ctx context.Context, endpoint string, params url.Values, out interface{}) (bool, error) {
	var env APIResponse
	if err := c.tr.GetJSON(ctx, endpoint, params, &env); err != nil {
		return false, err
	}
	if env.ReturnCode != 0 {
		if strings.Contains(strings.ToUpper(env.MsgInfo), "NOT_EXIST") {
			return false, nil
		}
		return false, venue.NewError(venue.XT, venue.KindProtocol, endpoint,
			fmt.Errorf("returnCode %d: %s", env.ReturnCode, env.MsgInfo))
	}
	if string(env.Result) == "null" || len(env.Result) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return false, venue.NewError(venue.XT, venue.KindProtocol, endpoint, err)
	}
	return true, nil
}

// FuturesTicker returns last/bid/ask from the aggregated ticker.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res AggTicker
	ok, err := c.getResult(ctx, EndpointAggTicker, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	return venue.SanityClampTicker(&venue.Ticker{
		Price: venue.F(res.Last),
		Bid:   venue.F(res.BidPx),
		Ask:   venue.F(res.AskPx),
	}), nil
}

// FundingInfo returns the current rate and next collection time.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res FundingRateResult
	ok, err := c.getResult(ctx, EndpointFundingRate, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	return &venue.FundingInfo{
		Rate:            venue.F(res.FundingRate),
		NextFundingTime: venue.NormalizeEpochMS(res.NextCollectionTime),
	}, nil
}

// Orderbook uses the CoinGecko-format depth feed; the native depth endpoint
// sits behind stricter anti-bot rules.
func (c *Client) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	params := url.Values{}
	params.Set("ticker_id", c.NormalizeSymbol(coin))
	params.Set("depth", strconv.Itoa(depth))
	var res CGOrderbook
	ok, err := c.getResult(ctx, EndpointOrderbook, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	toRaw := func(raw [][2]string) []venue.RawLevel {
		out := make([]venue.RawLevel, 0, len(raw))
		for _, p := range raw {
			out = append(out, venue.NewRawLevel(venue.F(p[0]), venue.F(p[1])))
		}
		return out
	}
	return venue.NormalizeBook(toRaw(res.Bids), toRaw(res.Asks), depth), nil
}

// Instrument derives lot filters from the symbol catalog entry.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	detail, err := c.symbolDetail(ctx, c.NormalizeSymbol(coin))
	if err != nil || detail == nil {
		return nil, err
	}
	size := venue.F(detail.ContractSize)
	if size <= 0 {
		size = 1
	}
	return &venue.Instrument{
		Symbol:           detail.Symbol,
		BaseCoin:         strings.ToUpper(detail.BaseCoin),
		QuoteCoin:        strings.ToUpper(detail.QuoteCoin),
		SettleCoin:       "USDT",
		Status:           strconv.Itoa(detail.State),
		ContractType:     detail.ContractType,
		QtyStep:          math.Pow(10, -float64(detail.QuantityPrecision)) * size,
		MinOrderQty:      venue.F(detail.MinQty) * size,
		TickSize:         math.Pow(10, -float64(detail.PricePrecision)),
		QuantoMultiplier: size,
	}, nil
}

func (c *Client) symbolDetail(ctx context.Context, symbol string) (*SymbolDetail, error) {
	var res []SymbolDetail
	ok, err := c.getResult(ctx, EndpointSymbolList, nil, &res)
	if err != nil || !ok {
		return nil, err
	}
	for i := range res {
		if res[i].Symbol == symbol {
			return &res[i], nil
		}
	}
	return nil, nil
}

// AllFuturesCoins lists online USDT perpetual bases from the symbol catalog.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	var res []SymbolDetail
	ok, err := c.getResult(ctx, EndpointSymbolList, nil, &res)
	if err != nil || !ok {
		return nil, err
	}
	coins := make(map[string]struct{}, len(res))
	for _, s := range res {
		if s.State != 1 || strings.ToUpper(s.QuoteCoin) != "USDT" {
			continue
		}
		coins[strings.ToUpper(s.BaseCoin)] = struct{}{}
	}
	log.Debug().Int("coins", len(coins)).Msg("XT futures catalog loaded")
	return coins, nil
}

var _ venue.Adapter = (*Client)(nil)
