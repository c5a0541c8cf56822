package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	BaseURL = "https://www.okx.com"

	EndpointTicker      = "/api/v5/market/ticker"
	EndpointBooks       = "/api/v5/market/books"
	EndpointFundingRate = "/api/v5/public/funding-rate"
	EndpointInstruments = "/api/v5/public/instruments"
)

// codes meaning "instrument does not exist".
var notFoundCodes = map[string]bool{
	"51001": true,
}

// Client is the OKX USDT-swap client.
type Client struct {
	tr *venue.Transport
}

// Config holds OKX client configuration.
type Config struct {
	BaseURL string
}

// New creates an OKX client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.OKX,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
	}
}

func (c *Client) ID() venue.ID { return venue.OKX }

// NormalizeSymbol maps BTC to BTC-USDT-SWAP.
func (c *Client) NormalizeSymbol(coin string) string {
	return strings.ToUpper(coin) + "-USDT-SWAP"
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
	if env.Code != "0" {
		if notFoundCodes[env.Code] {
			return false, nil
		}
		return false, venue.NewError(venue.OKX, venue.KindProtocol, endpoint,
			fmt.Errorf("code %s: %s", env.Code, env.Msg))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return false, venue.NewError(venue.OKX, venue.KindProtocol, endpoint, err)
	}
	return true, nil
}

// FuturesTicker returns last/bid/ask for the coin's USDT swap.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	params := url.Values{}
	params.Set("instId", c.NormalizeSymbol(coin))
	var res []TickerData
	ok, err := c.getData(ctx, EndpointTicker, params, &res)
	if err != nil || !ok || len(res) == 0 {
		return nil, err
	}
	t := res[0]
	return venue.SanityClampTicker(&venue.Ticker{
		Price: venue.F(t.Last),
		Bid:   venue.F(t.BidPx),
		Ask:   venue.F(t.AskPx),
	}), nil
}

// FundingInfo returns the current rate. Some instruments ship an empty
// fundingTime; the payout time is then left at zero rather than guessed
// from the venue's schedule.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	params := url.Values{}
	params.Set("instId", c.NormalizeSymbol(coin))
	var res []FundingRateData
	ok, err := c.getData(ctx, EndpointFundingRate, params, &res)
	if err != nil || !ok || len(res) == 0 {
		return nil, err
	}
	f := res[0]
	info := &venue.FundingInfo{Rate: venue.F(f.FundingRate)}
	if v, err := strconv.ParseInt(f.FundingTime, 10, 64); err == nil {
		info.NextFundingTime = venue.NormalizeEpochMS(v)
	}
	return info, nil
}

// Orderbook fetches the L2 book; levels carry two extra columns that are
// dropped during normalization.
func (c *Client) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	params := url.Values{}
	params.Set("instId", c.NormalizeSymbol(coin))
	params.Set("sz", strconv.Itoa(depth))
	var res []BookData
	ok, err := c.getData(ctx, EndpointBooks, params, &res)
	if err != nil || !ok || len(res) == 0 {
		return nil, err
	}
	toRaw := func(raw [][]string) []venue.RawLevel {
		out := make([]venue.RawLevel, 0, len(raw))
		for _, p := range raw {
			if len(p) < 2 {
				continue
			}
			out = append(out, venue.NewRawLevel(venue.F(p[0]), venue.F(p[1])))
		}
		return out
	}
	return venue.NormalizeBook(toRaw(res[0].Bids), toRaw(res[0].Asks), depth), nil
}

// Instrument fetches contract value and lot filters. OKX sizes are in
// contracts; QtyStep and MinOrderQty are scaled to base units by ctVal.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("instId", c.NormalizeSymbol(coin))
	var res []InstrumentData
	ok, err := c.getData(ctx, EndpointInstruments, params, &res)
	if err != nil || !ok || len(res) == 0 {
		return nil, err
	}
	in := res[0]
	ctVal := venue.F(in.CtVal)
	if ctVal <= 0 {
		ctVal = 1
	}
	return &venue.Instrument{
		Symbol:           in.InstID,
		BaseCoin:         strings.ToUpper(coin),
		QuoteCoin:        "USDT",
		SettleCoin:       in.SettleCcy,
		Status:           in.State,
		ContractType:     in.CtType,
		QtyStep:          venue.F(in.LotSz) * ctVal,
		MinOrderQty:      venue.F(in.MinSz) * ctVal,
		TickSize:         venue.F(in.TickSz),
		QuantoMultiplier: ctVal,
	}, nil
}

// AllFuturesCoins lists live USDT-settled linear swap bases.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	var res []InstrumentData
	ok, err := c.getData(ctx, EndpointInstruments, params, &res)
	if err != nil || !ok {
		return nil, err
	}
	coins := make(map[string]struct{}, len(res))
	for _, in := range res {
		if in.State != "live" || in.SettleCcy != "USDT" {
			continue
		}
		base, found := strings.CutSuffix(in.InstID, "-USDT-SWAP")
		if !found {
			continue
		}
		coins[strings.ToUpper(base)] = struct{}{}
	}
	log.Debug().Int("coins", len(coins)).Msg("OKX futures catalog loaded")
	return coins, nil
}

var _ venue.Adapter = (*Client)(nil)
