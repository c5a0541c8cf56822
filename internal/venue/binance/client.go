package binance

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	BaseURL = "https://fapi.binance.com"

	EndpointTicker24h    = "/fapi/v1/ticker/24hr"
	EndpointBookTicker   = "/fapi/v1/ticker/bookTicker"
	EndpointPremiumIndex = "/fapi/v1/premiumIndex"
	EndpointDepth        = "/fapi/v1/depth"
	EndpointExchangeInfo = "/fapi/v1/exchangeInfo"
)

// Client is the Binance USDT-margined futures client.
type Client struct {
	tr *venue.Transport
}

// Config holds Binance client configuration.
type Config struct {
	BaseURL string
}

// New creates a Binance client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.Binance,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
	}
}

func (c *Client) ID() venue.ID { return venue.Binance }

// NormalizeSymbol maps BTC to BTCUSDT.
func (c *Client) NormalizeSymbol(coin string) string {
	return strings.ToUpper(coin) + "USDT"
}

func (c *Client) Close() error {
	c.tr.Close()
	return nil
}

// notFound detects error code -1121 ("Invalid symbol"), which arrives in a
// 400 body the transport embeds in the protocol error.
func notFound(err error) bool {
	return err != nil &&
		venue.KindOf(err) == venue.KindProtocol &&
		strings.Contains(err.Error(), "-1121")
}

// FuturesTicker combines bookTicker (bid/ask) with ticker/24hr (last).
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))

	var book BookTicker
	if err := c.tr.GetJSON(ctx, EndpointBookTicker, params, &book); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var day Ticker24h
	if err := c.tr.GetJSON(ctx, EndpointTicker24h, params, &day); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	t := &venue.Ticker{
		Price: venue.F(day.LastPrice),
		Bid:   venue.F(book.BidPrice),
		Ask:   venue.F(book.AskPrice),
	}
	if t.Price == 0 {
		t.Price = (t.Bid + t.Ask) / 2
	}
	return venue.SanityClampTicker(t), nil
}

// FundingInfo reads the premium index for the current rate and payout time.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res PremiumIndex
	if err := c.tr.GetJSON(ctx, EndpointPremiumIndex, params, &res); err != nil {
		if notFound(err) {
			return nil, nil
		}
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
	params.Set("limit", strconv.Itoa(depthLimit(depth)))
	var res Depth
	if err := c.tr.GetJSON(ctx, EndpointDepth, params, &res); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return venue.NormalizeBook(pairLevels(res.Bids), pairLevels(res.Asks), depth), nil
}

// depthLimit snaps to the venue's allowed limit set.
func depthLimit(depth int) int {
	for _, allowed := range []int{5, 10, 20, 50, 100, 500, 1000} {
		if depth <= allowed {
			return allowed
		}
	}
	return 1000
}

// Instrument reads LOT_SIZE and PRICE_FILTER from the catalog entry.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	params := url.Values{}
	params.Set("symbol", c.NormalizeSymbol(coin))
	var res ExchangeInfo
	if err := c.tr.GetJSON(ctx, EndpointExchangeInfo, params, &res); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(res.Symbols) == 0 {
		return nil, nil
	}
	s := res.Symbols[0]
	out := &venue.Instrument{
		Symbol:       s.Symbol,
		BaseCoin:     s.BaseAsset,
		QuoteCoin:    s.QuoteAsset,
		SettleCoin:   s.MarginAsset,
		Status:       s.Status,
		ContractType: s.ContractType,
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			out.QtyStep = venue.F(f.StepSize)
			out.MinOrderQty = venue.F(f.MinQty)
		case "PRICE_FILTER":
			out.TickSize = venue.F(f.TickSize)
		case "MIN_NOTIONAL":
			out.MinNotional = venue.F(f.Notional)
		}
	}
	return out, nil
}

// AllFuturesCoins lists trading USDT perpetual bases from exchangeInfo.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	var res ExchangeInfo
	if err := c.tr.GetJSON(ctx, EndpointExchangeInfo, nil, &res); err != nil {
		return nil, err
	}
	coins := make(map[string]struct{}, len(res.Symbols))
	for _, s := range res.Symbols {
		if s.Status != "TRADING" || s.ContractType != "PERPETUAL" || s.QuoteAsset != "USDT" {
			continue
		}
		coins[strings.ToUpper(s.BaseAsset)] = struct{}{}
	}
	log.Debug().Int("coins", len(coins)).Msg("Binance futures catalog loaded")
	return coins, nil
}

func pairLevels(raw [][2]string) []venue.RawLevel {
	out := make([]venue.RawLevel, 0, len(raw))
	for _, p := range raw {
		out = append(out, venue.NewRawLevel(venue.F(p[0]), venue.F(p[1])))
	}
	return out
}

var _ venue.Adapter = (*Client)(nil)
