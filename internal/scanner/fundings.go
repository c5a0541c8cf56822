package scanner

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/evaluator"
	"arbscan/internal/metrics"
)

// RunFundingScan loops ScanFundingsOnce until ctx is cancelled.
func (s *Scanner) RunFundingScan(ctx context.Context) {
	for {
		s.ScanFundingsOnce(ctx)
		if !s.sleepOrDone(ctx) {
			return
		}
	}
}

// ScanFundingsOnce runs one full funding-spread cycle. Candidate pairs are
// logged when the long-leg rate is at or below the log filter; acceptance
// additionally needs the funding spread above threshold, a near payout on
// the long leg and a bounded price spread.
func (s *Scanner) ScanFundingsOnce(ctx context.Context) {
	start := time.Now()
	u := s.CollectUniverse(ctx)
	defer recordCycle("funding", len(u.Coins), start)

	for _, batch := range s.batches(u.Coins) {
		if ctx.Err() != nil {
			return
		}
		var wg sync.WaitGroup
		for _, coin := range batch {
			wg.Add(1)
			go func(coin string) {
				defer wg.Done()
				s.scanCoinFundings(ctx, coin, u)
			}(coin)
		}
		wg.Wait()
	}
}

func (s *Scanner) scanCoinFundings(ctx context.Context, coin string, u *Universe) {
	data := s.coinSnapshot(ctx, coin, u)
	if len(data) < 2 {
		return
	}

	var favorable []*evaluator.Opportunity
	for longID, long := range data {
		if long.Funding == nil {
			continue
		}
		fundingLongPct := long.Funding.Rate * 100
		if fundingLongPct > s.cfg.MinFundingLongFilterForLog {
			continue
		}
		for shortID, short := range data {
			if longID == shortID || short.Funding == nil {
				continue
			}
			spread, ok := evaluator.PriceSpreadPct(long.Ticker, short.Ticker)
			if !ok || math.Abs(spread) > s.cfg.MaxPriceSpread {
				continue
			}
			fs := evaluator.FundingSpreadFundingArb(long.Funding.Rate, short.Funding.Rate)
			log.Info().Str("coin", coin).
				Str("long", string(longID)).Str("short", string(shortID)).
				Float64("funding_long_pct", fundingLongPct).
				Float64("funding_spread_pct", fs).Msg("Funding candidate")
			if fs < s.cfg.MinFundingSpread {
				continue
			}
			metrics.RecordSpread("funding", coin, string(longID), string(shortID), fs)

			opp := s.analyze(ctx, coin, long, short, evaluator.Config{
				Mode:             evaluator.ModeFundingArb,
				NotionalUSDT:     s.cfg.ScanCoinInvest,
				MinFundingSpread: s.cfg.MinFundingSpread,
				MinTimeToPayMin:  s.cfg.MinTimeToPayMinutes,
			})
			if opp != nil {
				log.Info().Str("coin", coin).Msg(opp.Line())
				if opp.Favorable {
					favorable = append(favorable, opp)
				}
			}
		}
	}
	s.emitCoin(ctx, coin, favorable)
}
