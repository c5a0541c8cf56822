package bitget

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
	BaseURL = "https://api.bitget.com"

	EndpointTicker      = "/api/mix/v1/market/ticker"
	EndpointFundRate    = "/api/mix/v1/market/current-fundRate"
	EndpointFundingTime = "/api/mix/v1/market/funding-time"
	EndpointDepth       = "/api/mix/v1/market/depth"
	EndpointContracts   = "/api/v2/mix/market/contracts"

	// v1 market endpoints take the UMCBL-suffixed symbol
	symbolSuffix = "_UMCBL"
)

// codes meaning "symbol does not exist" on the mix API.
var notFoundCodes = map[string]bool{
	"40034": true,
	"40019": true,
}

// Client is the Bitget USDT-margined perpetual client.
type Client struct {
	tr *venue.Transport
}

// Config holds Bitget client configuration.
type Config struct {
	BaseURL string
}

// New creates a Bitget client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.Bitget,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
	}
}

func (c *Client) ID() venue.ID { return venue.Bitget }

// NormalizeSymbol maps BTC to BTCUSDT_UMCBL for the v1 market endpoints.
func (c *Client) NormalizeSymbol(coin string) string {
	return strings.ToUpper(coin) + "USDT" + symbolSuffix
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
	if env.Code != "00000" {
		if notFoundCodes[env.Code] {
			return false, nil
		}
		return false, venue.NewError(venue.Bitget, venue.KindProtocol, endpoint,
			fmt.Errorf("code %s: %s", env.Code, env.Msg))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, venue.NewError(venue.Bitget, venue.KindProtocol, endpoint, err)
	}
	return true, nil
}

// FuturesTicker returns last/bid/ask for the coin's USDT perpetual.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res TickerData
	ok, err := c.getData(ctx, EndpointTicker, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	return venue.SanityClampTicker(&venue.Ticker{
		Price: venue.F(res.Last),
		Bid:   venue.F(res.BestBid),
		Ask:   venue.F(res.BestAsk),
	}), nil
}

// FundingInfo combines current-fundRate with funding-time.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var rate FundRateData
	ok, err := c.getData(ctx, EndpointFundRate, params, &rate)
	if err != nil || !ok {
		return nil, err
	}
	info := &venue.FundingInfo{Rate: venue.F(rate.FundingRate)}
	var ft FundingTimeData
	if ok, err := c.getData(ctx, EndpointFundingTime, params, &ft); err == nil && ok {
		if v, err := strconv.ParseInt(ft.FundingTime, 10, 64); err == nil {
			info.NextFundingTime = venue.NormalizeEpochMS(v)
		}
	}
	return info, nil
}

// Orderbook fetches the L2 book.
func (c *Client) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	params.Set("limit", strconv.Itoa(depth))
	var res DepthData
	ok, err := c.getData(ctx, EndpointDepth, params, &res)
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

// Instrument reads lot filters from the v2 contract catalog entry.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	info, err := c.contract(ctx, strings.ToUpper(coin)+"USDT")
	if err != nil || info == nil {
		return nil, err
	}
	pricePlace := venue.F(info.PricePlace)
	tick := venue.F(info.PriceEndStep) * math.Pow(10, -pricePlace)
	return &venue.Instrument{
		Symbol:       info.Symbol,
		BaseCoin:     info.BaseCoin,
		QuoteCoin:    info.QuoteCoin,
		SettleCoin:   "USDT",
		Status:       info.SymbolStatus,
		ContractType: info.SymbolType,
		QtyStep:      math.Pow(10, -venue.F(info.VolumePlace)),
		MinOrderQty:  venue.F(info.MinTradeNum),
		TickSize:     tick,
	}, nil
}

func (c *Client) contract(ctx context.Context, symbol string) (*ContractInfo, error) {
	params := url.Values{}
	params.Set("productType", "usdt-futures")
	var res []ContractInfo
	ok, err := c.getData(ctx, EndpointContracts, params, &res)
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

// AllFuturesCoins lists normal-status USDT perpetual bases.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	params := url.Values{}
	params.Set("productType", "usdt-futures")
	var res []ContractInfo
	ok, err := c.getData(ctx, EndpointContracts, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	coins := make(map[string]struct{}, len(res))
	for _, info := range res {
		if info.SymbolStatus != "normal" || info.QuoteCoin != "USDT" {
			continue
		}
		coins[strings.ToUpper(info.BaseCoin)] = struct{}{}
	}
	log.Debug().Int("coins", len(coins)).Msg("Bitget futures catalog loaded")
	return coins, nil
}

var _ venue.Adapter = (*Client)(nil)
