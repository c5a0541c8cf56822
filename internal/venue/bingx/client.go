package bingx

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
	BaseURL = "https://open-api.bingx.com"

	EndpointTicker       = "/openApi/swap/v2/quote/ticker"
	EndpointPremiumIndex = "/openApi/swap/v2/quote/premiumIndex"
	EndpointDepth        = "/openApi/swap/v2/quote/depth"
	EndpointContracts    = "/openApi/swap/v2/quote/contracts"
)

// codes meaning "symbol does not exist".
var notFoundCodes = map[int]bool{
	109425: true,
	109415: true,
}

// Client is the BingX perpetual swap client.
type Client struct {
	tr *venue.Transport
}

// Config holds BingX client configuration.
type Config struct {
	BaseURL string
}

// New creates a BingX client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.BingX,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
	}
}

func (c *Client) ID() venue.ID { return venue.BingX }

// NormalizeSymbol maps BTC to BTC-USDT.
func (c *Client) NormalizeSymbol(coin string) string {
	return strings.ToUpper(coin) + "-USDT"
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
	if env.Code != 0 {
		if notFoundCodes[env.Code] {
			return false, nil
		}
		return false, venue.NewError(venue.BingX, venue.KindProtocol, endpoint,
			fmt.Errorf("code %d: %s", env.Code, env.Msg))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, venue.NewError(venue.BingX, venue.KindProtocol, endpoint, err)
	}
	return true, nil
}

// FuturesTicker returns last/bid/ask for the coin's USDT swap.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res TickerData
	ok, err := c.getData(ctx, EndpointTicker, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	return venue.SanityClampTicker(&venue.Ticker{
		Price: venue.F(res.LastPrice),
		Bid:   venue.F(res.BidPrice),
		Ask:   venue.F(res.AskPrice),
	}), nil
}

// FundingInfo reads the premium index.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res PremiumIndexData
	ok, err := c.getData(ctx, EndpointPremiumIndex, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	return &venue.FundingInfo{
		Rate:            venue.F(res.LastFundingRate),
		NextFundingTime: venue.NormalizeEpochMS(res.NextFundingTime),
	}, nil
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

// Instrument derives lot filters from the catalog precision fields.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	symbol := c.NormalizeSymbol(coin)
	var res []ContractInfo
	if ok, err := c.getData(ctx, EndpointContracts, nil, &res); err != nil || !ok {
		return nil, err
	}
	for _, info := range res {
		if info.Symbol != symbol {
			continue
		}
		return &venue.Instrument{
			Symbol:       info.Symbol,
			BaseCoin:     strings.ToUpper(info.Asset),
			QuoteCoin:    info.Currency,
			SettleCoin:   info.Currency,
			Status:       strconv.Itoa(info.Status),
			ContractType: "perpetual",
			QtyStep:      math.Pow(10, -float64(info.QuantityPrecision)),
			MinOrderQty:  info.TradeMinQuantity,
			TickSize:     math.Pow(10, -float64(info.PricePrecision)),
		}, nil
	}
	return nil, nil
}

// AllFuturesCoins lists online USDT swap bases.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	var res []ContractInfo
	if ok, err := c.getData(ctx, EndpointContracts, nil, &res); err != nil || !ok {
		return nil, err
	}
	coins := make(map[string]struct{}, len(res))
	for _, info := range res {
		if info.Status != 1 || info.Currency != "USDT" {
			continue
		}
		coins[strings.ToUpper(info.Asset)] = struct{}{}
	}
	log.Debug().Int("coins", len(coins)).Msg("BingX futures catalog loaded")
	return coins, nil
}

var _ venue.Adapter = (*Client)(nil)
