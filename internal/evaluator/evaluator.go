// Package evaluator turns a candidate (coin, long venue, short venue) pair
// into a verdict: compute the spreads, verify entry liquidity on both books
// in parallel and gate on delisting/security news.
package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/metrics"
	"arbscan/internal/news"
	"arbscan/internal/venue"
)

// Mode selects which spread drives the accept decision.
type Mode string

const (
	ModePriceArb   Mode = "price_arb"
	ModeFundingArb Mode = "funding_arb"
)

// VenueData is the per-leg market snapshot feeding an evaluation.
type VenueData struct {
	Venue   venue.ID
	Ticker  *venue.Ticker
	Funding *venue.FundingInfo
}

// Opportunity is the evaluated record emitted to sinks.
type Opportunity struct {
	Coin                string
	LongVenue           venue.ID
	ShortVenue          venue.ID
	PriceSpreadPct      float64
	FundingSpreadPct    *float64
	MinutesUntilFunding *int // long leg; nil when unknown
	MinutesShort        *int
	Long                VenueData
	Short               VenueData
	LongLiquidity       *venue.LiquidityReport
	ShortLiquidity      *venue.LiquidityReport
	Favorable           bool
	Reasons             []string
}

// PriceSpreadPct is (bidShort - askLong) / askLong * 100.
// ok is false when either side lacks a usable quote.
func PriceSpreadPct(long, short *venue.Ticker) (float64, bool) {
	if long == nil || short == nil || long.Ask <= 0 || short.Bid <= 0 {
		return 0, false
	}
	return (short.Bid - long.Ask) / long.Ask * 100, true
}

// FundingSpreadPriceArb is (fundingShort - fundingLong) * 100, the net
// funding tailwind of a price-arb position.
func FundingSpreadPriceArb(fundingLong, fundingShort float64) float64 {
	return (fundingShort - fundingLong) * 100
}

// FundingSpreadFundingArb is (receivedOnLong - paidOnShort) * 100: the long
// leg only earns when its rate is negative, and the short leg's payment is
// counted at its magnitude regardless of sign.
func FundingSpreadFundingArb(fundingLong, fundingShort float64) float64 {
	received := 0.0
	if fundingLong < 0 {
		received = -fundingLong
	}
	paid := math.Abs(fundingShort)
	return (received - paid) * 100
}

// Config carries the thresholds an evaluation runs against.
type Config struct {
	Mode             Mode
	NotionalUSDT     float64
	Depth            int
	MaxSpreadBps     float64
	MaxImpactBps     float64
	MinFundingSpread float64 // percent, funding-arb only
	MinTimeToPayMin  int     // minutes, funding-arb only
}

// Defaults fills the liquidity-check constants.
func (c *Config) defaults() {
	if c.Depth <= 0 {
		c.Depth = 50
	}
	if c.MaxSpreadBps <= 0 {
		c.MaxSpreadBps = 30
	}
	if c.MaxImpactBps <= 0 {
		c.MaxImpactBps = 50
	}
}

// Evaluator owns the news engine and the adapter lookup used for books.
type Evaluator struct {
	adapters map[venue.ID]venue.Adapter
	news     *news.Engine
}

// New creates an evaluator over the live adapters.
func New(adapters map[venue.ID]venue.Adapter, newsEngine *news.Engine) *Evaluator {
	return &Evaluator{adapters: adapters, news: newsEngine}
}

// Evaluate runs the full pipeline and returns the scored opportunity.
// A nil return means the pair carries no opportunity at all (no price edge
// in price-arb mode, or a funding-arb early reject).
func (e *Evaluator) Evaluate(ctx context.Context, coin string, long, short VenueData, cfg Config) *Opportunity {
	cfg.defaults()
	now := time.Now()

	opp := &Opportunity{
		Coin:       strings.ToUpper(coin),
		LongVenue:  long.Venue,
		ShortVenue: short.Venue,
		Long:       long,
		Short:      short,
	}

	spread, ok := PriceSpreadPct(long.Ticker, short.Ticker)
	if !ok {
		return nil
	}
	opp.PriceSpreadPct = spread

	if long.Funding != nil && short.Funding != nil {
		var fs float64
		if cfg.Mode == ModeFundingArb {
			fs = FundingSpreadFundingArb(long.Funding.Rate, short.Funding.Rate)
		} else {
			fs = FundingSpreadPriceArb(long.Funding.Rate, short.Funding.Rate)
		}
		opp.FundingSpreadPct = &fs
		if m, ok := venue.MinutesUntilFunding(long.Funding.NextFundingTime, now); ok {
			opp.MinutesUntilFunding = &m
		}
		if m, ok := venue.MinutesUntilFunding(short.Funding.NextFundingTime, now); ok {
			opp.MinutesShort = &m
		}
	}

	if cfg.Mode == ModeFundingArb {
		if reason, rejected := e.fundingEarlyReject(opp, cfg); rejected {
			opp.Reasons = append(opp.Reasons, reason)
			log.Info().Str("coin", opp.Coin).
				Str("long", string(long.Venue)).Str("short", string(short.Venue)).
				Str("reason", reason).Msg("Funding opportunity rejected")
			return nil
		}
	}

	e.checkLiquidityBoth(ctx, opp, cfg)
	e.checkNews(ctx, opp)

	liquidityOK := reportOK(opp.LongLiquidity) && reportOK(opp.ShortLiquidity)
	opp.Favorable = liquidityOK && len(opp.Reasons) == 0

	verdict := "favorable"
	if !opp.Favorable {
		verdict = "rejected"
	}
	metrics.OpportunitiesAnalyzed.WithLabelValues(verdict).Inc()
	return opp
}

func (e *Evaluator) fundingEarlyReject(opp *Opportunity, cfg Config) (string, bool) {
	if opp.FundingSpreadPct == nil {
		return "нет данных по фандингу", true
	}
	if *opp.FundingSpreadPct < cfg.MinFundingSpread {
		return fmt.Sprintf("фанд %.3f%% < %.3f%%", *opp.FundingSpreadPct, cfg.MinFundingSpread), true
	}
	if opp.MinutesUntilFunding == nil {
		return "время выплаты неизвестно", true
	}
	if *opp.MinutesUntilFunding >= cfg.MinTimeToPayMin {
		return fmt.Sprintf("выплата через %d мин >= %d", *opp.MinutesUntilFunding, cfg.MinTimeToPayMin), true
	}
	return "", false
}

// checkLiquidityBoth runs the entry-side depth check on both venues in
// parallel. A venue without an adapter or book simply contributes a reject
// reason.
func (e *Evaluator) checkLiquidityBoth(ctx context.Context, opp *Opportunity, cfg Config) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		opp.LongLiquidity = e.checkOne(ctx, opp.Coin, opp.LongVenue, cfg, venue.EntryLong)
	}()
	go func() {
		defer wg.Done()
		opp.ShortLiquidity = e.checkOne(ctx, opp.Coin, opp.ShortVenue, cfg, venue.EntryShort)
	}()
	wg.Wait()

	for _, side := range []struct {
		rep *venue.LiquidityReport
		v   venue.ID
	}{{opp.LongLiquidity, opp.LongVenue}, {opp.ShortLiquidity, opp.ShortVenue}} {
		if side.rep == nil {
			opp.Reasons = append(opp.Reasons, fmt.Sprintf("нет стакана (%s)", side.v))
			metrics.LiquidityRejects.WithLabelValues(string(side.v)).Inc()
		} else if !side.rep.OK {
			opp.Reasons = append(opp.Reasons,
				fmt.Sprintf("ликвидность (%s): %s", side.v, strings.Join(side.rep.Reasons, "; ")))
			metrics.LiquidityRejects.WithLabelValues(string(side.v)).Inc()
		}
	}
}

func (e *Evaluator) checkOne(ctx context.Context, coin string, v venue.ID, cfg Config, mode venue.LiquidityMode) *venue.LiquidityReport {
	a, ok := e.adapters[v]
	if !ok {
		return nil
	}
	rep, err := venue.CheckLiquidity(ctx, a, coin, cfg.NotionalUSDT, cfg.Depth, cfg.MaxSpreadBps, cfg.MaxImpactBps, mode)
	if err != nil {
		log.Warn().Str("coin", coin).Str("venue", string(v)).Err(err).Msg("Liquidity check failed")
		return nil
	}
	return rep
}

// checkNews queries both venues through the cached engine. Items across the
// two venues are merged by the engine's dedup identity.
func (e *Evaluator) checkNews(ctx context.Context, opp *Opportunity) {
	if e.news == nil {
		return
	}
	var delisting, security []news.Item
	for _, v := range []venue.ID{opp.LongVenue, opp.ShortVenue} {
		report := e.news.CheckCoin(ctx, opp.Coin, v)
		delisting = append(delisting, report.Delisting...)
		security = append(security, report.Security...)
	}
	if len(news.Dedup(delisting)) > 0 {
		opp.Reasons = append(opp.Reasons, "делистинг")
		return
	}
	if len(news.Dedup(security)) > 0 {
		opp.Reasons = append(opp.Reasons, "безопасность")
	}
}

func reportOK(rep *venue.LiquidityReport) bool {
	return rep != nil && rep.OK
}
