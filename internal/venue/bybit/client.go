package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	BaseURLMainnet = "https://api.bybit.com"
	BaseURLTestnet = "https://api-testnet.bybit.com"

	EndpointTickers     = "/v5/market/tickers"
	EndpointOrderbook   = "/v5/market/orderbook"
	EndpointInstruments = "/v5/market/instruments-info"

	EndpointCreateOrder   = "/v5/order/create"
	EndpointGetOrders     = "/v5/order/realtime"
	EndpointOrderHistory  = "/v5/order/history"
	EndpointSetLeverage   = "/v5/position/set-leverage"
	EndpointWalletBalance = "/v5/account/wallet-balance"

	categoryLinear = "linear"
)

// retCodes that mean "symbol does not exist" rather than a hard failure.
var notFoundCodes = map[int]bool{
	10001: true, // params error: symbol invalid
}

// Client is the Bybit v5 linear-perpetual client.
type Client struct {
	tr         *venue.Transport
	apiKey     string
	apiSecret  string
	recvWindow string
}

// Config holds Bybit client configuration. Keys are only needed for trading.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow int64 // milliseconds, default 5000
}

// New creates a Bybit client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURLMainnet
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.Bybit,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: strconv.FormatInt(cfg.RecvWindow, 10),
	}
}

func (c *Client) ID() venue.ID { return venue.Bybit }

// NormalizeSymbol maps BTC to BTCUSDT.
func (c *Client) NormalizeSymbol(coin string) string {
	return strings.ToUpper(coin) + "USDT"
}

func (c *Client) Close() error {
	c.tr.Close()
	return nil
}

// getResult unwraps the v5 envelope into out. Returns (false, nil) when the
// venue reports the symbol as unknown.
func (c *Client) getResult(ctx context.Context, endpoint string, params url.Values, out interface{}) (bool, error) {
	var env APIResponse
	if err := c.tr.GetJSON(ctx, endpoint, params, &env); err != nil {
		return false, err
	}
	if env.RetCode != 0 {
		if notFoundCodes[env.RetCode] {
			return false, nil
		}
		return false, venue.NewError(venue.Bybit, venue.KindProtocol, endpoint,
			fmt.Errorf("retCode %d: %s", env.RetCode, env.RetMsg))
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return false, venue.NewError(venue.Bybit, venue.KindProtocol, endpoint, err)
	}
	return true, nil
}

func (c *Client) tickerInfo(ctx context.Context, coin string) (*TickerInfo, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res TickersResult
	ok, err := c.getResult(ctx, EndpointTickers, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, nil
	}
	return &res.List[0], nil
}

// FuturesTicker returns last/bid/ask for the coin's USDT perpetual.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	ti, err := c.tickerInfo(ctx, coin)
	if err != nil || ti == nil {
		return nil, err
	}
	return venue.SanityClampTicker(&venue.Ticker{
		Price: venue.F(ti.LastPrice),
		Bid:   venue.F(ti.Bid1Price),
		Ask:   venue.F(ti.Ask1Price),
	}), nil
}

// FundingInfo returns the current rate and next payout time; both come from
// the tickers payload so one request covers ticker and funding.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	ti, err := c.tickerInfo(ctx, coin)
	if err != nil || ti == nil {
		return nil, err
	}
	var next int64
	if v, err := strconv.ParseInt(ti.NextFundingTime, 10, 64); err == nil {
		next = venue.NormalizeEpochMS(v)
	}
	return &venue.FundingInfo{
		Rate:            venue.F(ti.FundingRate),
		NextFundingTime: next,
	}, nil
}

// Orderbook fetches the L2 book truncated to depth levels per side.
func (c *Client) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", c.NormalizeSymbol(coin))
	params.Set("limit", strconv.Itoa(depth))
	var res OrderbookResult
	ok, err := c.getResult(ctx, EndpointOrderbook, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	return venue.NormalizeBook(pairLevels(res.Bids), pairLevels(res.Asks), depth), nil
}

// Instrument fetches lot and price filters for the coin's perpetual.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res InstrumentsResult
	ok, err := c.getResult(ctx, EndpointInstruments, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, nil
	}
	return toInstrument(&res.List[0]), nil
}

// AllFuturesCoins pages the instrument catalog with the v5 cursor and returns
// the base coins of live USDT linear perpetuals.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	coins := make(map[string]struct{})
	cursor := ""
	for page := 0; page < 20; page++ {
		params := url.Values{}
		params.Set("category", categoryLinear)
		params.Set("limit", "1000")
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var res InstrumentsResult
		ok, err := c.getResult(ctx, EndpointInstruments, params, &res)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		for _, in := range res.List {
			if in.Status != "Trading" || in.QuoteCoin != "USDT" {
				continue
			}
			coins[strings.ToUpper(in.BaseCoin)] = struct{}{}
		}
		if res.NextPageCursor == "" {
			break
		}
		cursor = res.NextPageCursor
	}
	log.Debug().Int("coins", len(coins)).Msg("Bybit futures catalog loaded")
	return coins, nil
}

func toInstrument(in *InstrumentInfo) *venue.Instrument {
	return &venue.Instrument{
		Symbol:       in.Symbol,
		BaseCoin:     in.BaseCoin,
		QuoteCoin:    in.QuoteCoin,
		SettleCoin:   in.SettleCoin,
		Status:       in.Status,
		ContractType: in.ContractType,
		QtyStep:      venue.F(in.LotSizeFilter.QtyStep),
		MinOrderQty:  venue.F(in.LotSizeFilter.MinOrderQty),
		TickSize:     venue.F(in.PriceFilter.TickSize),
		MinNotional:  venue.F(in.LotSizeFilter.MinNotionalVal),
	}
}

func pairLevels(raw [][2]string) []venue.RawLevel {
	out := make([]venue.RawLevel, 0, len(raw))
	for _, p := range raw {
		out = append(out, venue.NewRawLevel(venue.F(p[0]), venue.F(p[1])))
	}
	return out
}

var _ venue.Adapter = (*Client)(nil)

// serverTimestamp is the millisecond timestamp used in signed requests.
func serverTimestamp() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
