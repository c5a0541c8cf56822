package gate

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"arbscan/internal/venue"
)

const (
	BaseURL = "https://api.gateio.ws"

	EndpointTickers     = "/api/v4/futures/usdt/tickers"
	EndpointContracts   = "/api/v4/futures/usdt/contracts"
	EndpointFundingRate = "/api/v4/futures/usdt/funding_rate"
	EndpointOrderBook   = "/api/v4/futures/usdt/order_book"
	EndpointOrders      = "/api/v4/futures/usdt/orders"
	EndpointAccounts    = "/api/v4/futures/usdt/accounts"
)

// coinAliases maps scanner coin names to Gate contract bases where the venue
// lists the asset under a different ticker.
var coinAliases = map[string]string{
	"FUN": "SPORTFUN",
}

// Client is the Gate USDT-futures client.
type Client struct {
	tr        *venue.Transport
	apiKey    string
	apiSecret string
}

// Config holds Gate client configuration. Keys are only needed for trading.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// New creates a Gate client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	return &Client{
		tr: venue.NewTransport(venue.TransportConfig{
			Venue:   venue.Gate,
			Hosts:   []string{cfg.BaseURL},
			Retries: 2,
		}),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
	}
}

func (c *Client) ID() venue.ID { return venue.Gate }

// NormalizeSymbol maps BTC to BTC_USDT, applying the alias table first.
func (c *Client) NormalizeSymbol(coin string) string {
	coin = strings.ToUpper(coin)
	if alias, ok := coinAliases[coin]; ok {
		coin = alias
	}
	return coin + "_USDT"
}

func (c *Client) Close() error {
	c.tr.Close()
	return nil
}

// notFound detects Gate's CONTRACT_NOT_FOUND label, which the transport
// surfaces as a protocol error with the body embedded.
func notFound(err error) bool {
	if err == nil {
		return false
	}
	if venue.KindOf(err) != venue.KindProtocol {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "CONTRACT_NOT_FOUND") || strings.Contains(msg, "INVALID_CURRENCY")
}

// FuturesTicker returns last/bid/ask for the coin's USDT perpetual.
func (c *Client) FuturesTicker(ctx context.Context, coin string) (*venue.Ticker, error) {
	params := url.Values{}
	params.Set("contract", c.NormalizeSymbol(coin))
	var res []TickerInfo
	if err := c.tr.GetJSON(ctx, EndpointTickers, params, &res); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	t := res[0]
	return venue.SanityClampTicker(&venue.Ticker{
		Price: venue.F(t.Last),
		Bid:   venue.F(t.HighestBid),
		Ask:   venue.F(t.LowestAsk),
	}), nil
}

// FundingInfo reads the current rate and next apply time from the contract
// detail; the /funding_rate history endpoint only carries settled rates.
func (c *Client) FundingInfo(ctx context.Context, coin string) (*venue.FundingInfo, error) {
	info, err := c.contract(ctx, coin)
	if err != nil || info == nil {
		return nil, err
	}
	return &venue.FundingInfo{
		Rate:            venue.F(info.FundingRate),
		NextFundingTime: venue.NormalizeEpochMS(info.FundingNextApply),
	}, nil
}

// FundingHistory returns the most recent settled rates, newest first.
func (c *Client) FundingHistory(ctx context.Context, coin string, limit int) ([]FundingRateEntry, error) {
	params := url.Values{}
	params.Set("contract", c.NormalizeSymbol(coin))
	params.Set("limit", strconv.Itoa(limit))
	var res []FundingRateEntry
	if err := c.tr.GetJSON(ctx, EndpointFundingRate, params, &res); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// Orderbook fetches the L2 book. Sizes arrive in contracts; they are scaled
// to base units by the quanto multiplier so VWAP math sees real quantities.
func (c *Client) Orderbook(ctx context.Context, coin string, depth int) (*venue.OrderBook, error) {
	info, err := c.contract(ctx, coin)
	if err != nil || info == nil {
		return nil, err
	}
	mult := venue.F(info.QuantoMultiplier)
	if mult <= 0 {
		mult = 1
	}
	params := url.Values{}
	params.Set("contract", c.NormalizeSymbol(coin))
	params.Set("limit", strconv.Itoa(depth))
	var res BookResult
	if err := c.tr.GetJSON(ctx, EndpointOrderBook, params, &res); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	toRaw := func(levels []BookLevel) []venue.RawLevel {
		out := make([]venue.RawLevel, 0, len(levels))
		for _, lv := range levels {
			out = append(out, venue.NewRawLevel(venue.F(lv.Price), lv.Size*mult))
		}
		return out
	}
	return venue.NormalizeBook(toRaw(res.Bids), toRaw(res.Asks), depth), nil
}

func (c *Client) contract(ctx context.Context, coin string) (*ContractInfo, error) {
	var res ContractInfo
	path := EndpointContracts + "/" + c.NormalizeSymbol(coin)
	if err := c.tr.GetJSON(ctx, path, nil, &res); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// Instrument maps the contract detail onto the canonical instrument.
// QtyStep is one contract expressed in base units.
func (c *Client) Instrument(ctx context.Context, coin string) (*venue.Instrument, error) {
	info, err := c.contract(ctx, coin)
	if err != nil || info == nil {
		return nil, err
	}
	mult := venue.F(info.QuantoMultiplier)
	if mult <= 0 {
		mult = 1
	}
	return &venue.Instrument{
		Symbol:           info.Name,
		BaseCoin:         strings.TrimSuffix(info.Name, "_USDT"),
		QuoteCoin:        "USDT",
		SettleCoin:       "USDT",
		Status:           info.Status,
		ContractType:     info.Type,
		QtyStep:          mult,
		MinOrderQty:      float64(info.OrderSizeMin) * mult,
		TickSize:         venue.F(info.OrderPriceRound),
		QuantoMultiplier: mult,
	}, nil
}

// AllFuturesCoins lists live USDT perpetual bases, skipping contracts the
// venue has flagged for delisting.
func (c *Client) AllFuturesCoins(ctx context.Context) (map[string]struct{}, error) {
	var res []ContractInfo
	if err := c.tr.GetJSON(ctx, EndpointContracts, nil, &res); err != nil {
		return nil, err
	}
	coins := make(map[string]struct{}, len(res))
	for _, info := range res {
		if info.InDelisting {
			continue
		}
		base, ok := strings.CutSuffix(info.Name, "_USDT")
		if !ok {
			continue
		}
		coins[strings.ToUpper(base)] = struct{}{}
	}
	log.Debug().Int("coins", len(coins)).Msg("Gate futures catalog loaded")
	return coins, nil
}

var _ venue.Adapter = (*Client)(nil)
