package venue

import (
	"context"
	"time"
)

// ID identifies a supported derivatives venue.
type ID string

const (
	Bybit   ID = "bybit"
	Gate    ID = "gate"
	MEXC    ID = "mexc"
	XT      ID = "xt"
	Binance ID = "binance"
	Bitget  ID = "bitget"
	OKX     ID = "okx"
	BingX   ID = "bingx"
	LBank   ID = "lbank"
)

// All lists every venue the scanner knows about.
func All() []ID {
	return []ID{Bybit, Gate, MEXC, XT, Binance, Bitget, OKX, BingX, LBank}
}

// Valid reports whether id names a known venue.
func Valid(id ID) bool {
	for _, v := range All() {
		if v == id {
			return true
		}
	}
	return false
}

// Ticker is top-of-book data for a perpetual contract.
// Price falls back to the last trade when the venue has no separate field.
type Ticker struct {
	Price float64 `json:"price"`
	Bid   float64 `json:"bid"`
	Ask   float64 `json:"ask"`
}

// FundingInfo carries the current funding rate in decimal form
// (positive means longs pay shorts) and the next payout time in
// epoch milliseconds; NextFundingTime is zero when unknown.
type FundingInfo struct {
	Rate            float64 `json:"rate"`
	NextFundingTime int64   `json:"next_funding_time_ms,omitempty"`
}

// Level is one price level of an orderbook side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a canonical L2 snapshot: bids sorted descending by price,
// asks ascending, all levels positive.
type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (ob *OrderBook) BestBid() float64 {
	if ob == nil || len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (ob *OrderBook) BestAsk() float64 {
	if ob == nil || len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Instrument describes the tradeable contract for one coin on one venue.
type Instrument struct {
	Symbol           string  `json:"symbol"`
	BaseCoin         string  `json:"base_coin"`
	QuoteCoin        string  `json:"quote_coin"`
	Status           string  `json:"status"`
	SettleCoin       string  `json:"settle_coin"`
	ContractType     string  `json:"contract_type"`
	QtyStep          float64 `json:"qty_step"`
	MinOrderQty      float64 `json:"min_order_qty"`
	TickSize         float64 `json:"tick_size"`
	QuantoMultiplier float64 `json:"quanto_multiplier,omitempty"`
	MinNotional      float64 `json:"min_notional,omitempty"`
}

// LiquidityMode selects which book sides CheckLiquidity must verify.
type LiquidityMode string

const (
	EntryLong  LiquidityMode = "entry_long"  // buy depth only
	EntryShort LiquidityMode = "entry_short" // sell depth only
	RoundTrip  LiquidityMode = "roundtrip"   // both sides
)

// LiquidityReport is the result of a VWAP-for-notional depth check.
type LiquidityReport struct {
	Mid           float64  `json:"mid"`
	Bid1          float64  `json:"bid1"`
	Ask1          float64  `json:"ask1"`
	SpreadBps     float64  `json:"spread_bps"`
	NotionalUSDT  float64  `json:"notional_usdt"`
	BuyVWAP       *float64 `json:"buy_vwap,omitempty"`
	SellVWAP      *float64 `json:"sell_vwap,omitempty"`
	BuyImpactBps  *float64 `json:"buy_impact_bps,omitempty"`
	SellImpactBps *float64 `json:"sell_impact_bps,omitempty"`
	OK            bool     `json:"ok"`
	Reasons       []string `json:"reasons,omitempty"`
}

// Adapter is the uniform capability set every venue client implements.
// Market-data lookups return (nil, nil) when the venue reports the symbol
// as unknown; that is not an error (see ErrKind taxonomy in errors.go).
type Adapter interface {
	ID() ID

	// NormalizeSymbol maps an uppercase coin to the venue-local contract symbol.
	NormalizeSymbol(coin string) string

	FuturesTicker(ctx context.Context, coin string) (*Ticker, error)
	FundingInfo(ctx context.Context, coin string) (*FundingInfo, error)
	Orderbook(ctx context.Context, coin string, depth int) (*OrderBook, error)
	Instrument(ctx context.Context, coin string) (*Instrument, error)

	// AllFuturesCoins returns the set of base coins with live USDT perpetuals.
	AllFuturesCoins(ctx context.Context) (map[string]struct{}, error)

	Close() error
}

// FundingRate fetches just the decimal funding rate via the adapter's
// FundingInfo; ok is false when the venue has no data for the coin.
func FundingRate(ctx context.Context, a Adapter, coin string) (rate float64, ok bool, err error) {
	info, err := a.FundingInfo(ctx, coin)
	if err != nil || info == nil {
		return 0, false, err
	}
	return info.Rate, true, nil
}

// NormalizeEpochMS converts an epoch timestamp in seconds, milliseconds or
// nanoseconds to milliseconds. Returns 0 for non-positive or tiny inputs.
func NormalizeEpochMS(v int64) int64 {
	switch {
	case v >= 1e17: // ns
		return v / 1_000_000
	case v >= 1e12: // ms
		return v
	case v >= 1e9: // s
		return v * 1000
	default:
		return 0
	}
}

// MinutesUntilFunding converts a raw next-funding timestamp (seconds or ms)
// into whole minutes from now. ok is false when the timestamp is missing or
// already in the past; the result is never negative.
func MinutesUntilFunding(raw int64, now time.Time) (minutes int, ok bool) {
	ms := NormalizeEpochMS(raw)
	if ms == 0 {
		return 0, false
	}
	d := time.UnixMilli(ms).Sub(now)
	if d < 0 {
		return 0, false
	}
	return int(d.Minutes()), true
}
