package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/evaluator"
	"arbscan/internal/metrics"
)

// RunPriceScan loops ScanPricesOnce until ctx is cancelled, sleeping the
// scan interval between cycles.
func (s *Scanner) RunPriceScan(ctx context.Context) {
	for {
		s.ScanPricesOnce(ctx)
		if !s.sleepOrDone(ctx) {
			return
		}
	}
}

// ScanPricesOnce runs one full price-spread cycle. Inner failures degrade
// to fewer verdicts; the cycle itself never fails.
func (s *Scanner) ScanPricesOnce(ctx context.Context) {
	start := time.Now()
	u := s.CollectUniverse(ctx)
	defer recordCycle("price", len(u.Coins), start)

	for _, batch := range s.batches(u.Coins) {
		if ctx.Err() != nil {
			return
		}
		var wg sync.WaitGroup
		for _, coin := range batch {
			wg.Add(1)
			go func(coin string) {
				defer wg.Done()
				s.scanCoinPrices(ctx, coin, u)
			}(coin)
		}
		wg.Wait()
		log.Debug().Int("batch", len(batch)).Dur("elapsed", time.Since(start)).Msg("Price batch done")
	}
}

func (s *Scanner) scanCoinPrices(ctx context.Context, coin string, u *Universe) {
	data := s.coinSnapshot(ctx, coin, u)
	if len(data) < 2 {
		return
	}

	var favorable []*evaluator.Opportunity
	for longID, long := range data {
		for shortID, short := range data {
			if longID == shortID {
				continue
			}
			spread, ok := evaluator.PriceSpreadPct(long.Ticker, short.Ticker)
			if !ok || spread < s.cfg.MinSpread {
				continue
			}
			metrics.RecordSpread("price", coin, string(longID), string(shortID), spread)
			log.Info().Str("coin", coin).
				Str("long", string(longID)).Str("short", string(shortID)).
				Float64("spread_pct", spread).Msg("Price spread above threshold")

			opp := s.analyze(ctx, coin, long, short, evaluator.Config{
				Mode:         evaluator.ModePriceArb,
				NotionalUSDT: s.cfg.ScanCoinInvest,
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

// analyze runs the evaluator under the analysis semaphore.
func (s *Scanner) analyze(ctx context.Context, coin string, long, short evaluator.VenueData, cfg evaluator.Config) *evaluator.Opportunity {
	select {
	case s.analysisSem <- struct{}{}:
		defer func() { <-s.analysisSem }()
	case <-ctx.Done():
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout())
	defer cancel()
	return s.eval.Evaluate(cctx, coin, long, short, cfg)
}
