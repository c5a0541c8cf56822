// Package scanner runs the two long-lived loops: the price-spread scan and
// the funding-spread scan. Each cycle collects the coin universe, fans
// per-coin work out under bounded concurrency and emits one aggregated
// record per coin to the sink.
package scanner

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/config"
	"arbscan/internal/evaluator"
	"arbscan/internal/metrics"
	"arbscan/internal/sink"
	"arbscan/internal/venue"
)

// Scanner owns the adapters, evaluator and sink for both scan modes.
type Scanner struct {
	adapters map[venue.ID]venue.Adapter
	eval     *evaluator.Evaluator
	cfg      config.Config
	out      sink.Sink

	fetchSem    chan struct{} // global market-data semaphore
	analysisSem chan struct{} // deep-analysis semaphore
}

// New creates a scanner.
func New(adapters map[venue.ID]venue.Adapter, eval *evaluator.Evaluator, cfg config.Config, out sink.Sink) *Scanner {
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 10
	}
	analysisConc := cfg.AnalysisMaxConcurrency
	if analysisConc <= 0 {
		analysisConc = 2
	}
	return &Scanner{
		adapters:    adapters,
		eval:        eval,
		cfg:         cfg,
		out:         out,
		fetchSem:    make(chan struct{}, maxConc),
		analysisSem: make(chan struct{}, analysisConc),
	}
}

// Universe is the per-venue listing map plus the union used for iteration.
type Universe struct {
	ByVenue map[venue.ID]map[string]struct{}
	Coins   []string
}

// Listed reports whether coin trades on v.
func (u *Universe) Listed(coin string, v venue.ID) bool {
	set, ok := u.ByVenue[v]
	if !ok {
		return false
	}
	_, listed := set[coin]
	return listed
}

// CollectUniverse fans the catalog fetch across all venues in parallel,
// dropping digit-led coins and the operator's exclusions.
func (s *Scanner) CollectUniverse(ctx context.Context) *Universe {
	u := &Universe{ByVenue: make(map[venue.ID]map[string]struct{}, len(s.adapters))}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for id, a := range s.adapters {
		wg.Add(1)
		go func(id venue.ID, a venue.Adapter) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout())
			defer cancel()
			coins, err := a.AllFuturesCoins(cctx)
			if err != nil {
				log.Warn().Str("venue", string(id)).Err(err).Msg("Catalog fetch failed")
				return
			}
			mu.Lock()
			u.ByVenue[id] = coins
			mu.Unlock()
		}(id, a)
	}
	wg.Wait()

	union := make(map[string]struct{})
	for _, set := range u.ByVenue {
		for coin := range set {
			if coin == "" || (coin[0] >= '0' && coin[0] <= '9') {
				continue
			}
			if s.cfg.ExcludedCoin(coin) {
				continue
			}
			union[coin] = struct{}{}
		}
	}
	u.Coins = make([]string, 0, len(union))
	for coin := range union {
		u.Coins = append(u.Coins, coin)
	}
	sort.Strings(u.Coins)
	log.Info().Int("coins", len(u.Coins)).Int("venues", len(u.ByVenue)).Msg("Coin universe collected")
	return u
}

// coinSnapshot fetches ticker and funding for coin on every venue that
// lists it, bounded by the global semaphore.
func (s *Scanner) coinSnapshot(ctx context.Context, coin string, u *Universe) map[venue.ID]evaluator.VenueData {
	out := make(map[venue.ID]evaluator.VenueData)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for id, a := range s.adapters {
		if !u.Listed(coin, id) {
			continue
		}
		wg.Add(1)
		go func(id venue.ID, a venue.Adapter) {
			defer wg.Done()
			select {
			case s.fetchSem <- struct{}{}:
				defer func() { <-s.fetchSem }()
			case <-ctx.Done():
				return
			}
			cctx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout())
			defer cancel()

			ticker, err := a.FuturesTicker(cctx, coin)
			if err != nil || ticker == nil {
				if err != nil {
					log.Debug().Str("coin", coin).Str("venue", string(id)).Err(err).Msg("Ticker unavailable")
				}
				return
			}
			funding, err := a.FundingInfo(cctx, coin)
			if err != nil {
				log.Debug().Str("coin", coin).Str("venue", string(id)).Err(err).Msg("Funding unavailable")
			}
			mu.Lock()
			out[id] = evaluator.VenueData{Venue: id, Ticker: ticker, Funding: funding}
			mu.Unlock()
		}(id, a)
	}
	wg.Wait()
	return out
}

// batches splits coins into COIN_BATCH_SIZE groups.
func (s *Scanner) batches(coins []string) [][]string {
	size := s.cfg.CoinBatchSize
	if size <= 0 {
		size = len(coins)
	}
	var out [][]string
	for start := 0; start < len(coins); start += size {
		end := start + size
		if end > len(coins) {
			end = len(coins)
		}
		out = append(out, coins[start:end])
	}
	return out
}

// emitCoin sends one aggregated record per coin per cycle.
func (s *Scanner) emitCoin(ctx context.Context, coin string, opps []*evaluator.Opportunity) {
	if len(opps) == 0 {
		return
	}
	lines := make([]string, 0, len(opps))
	for _, o := range opps {
		lines = append(lines, o.Line())
	}
	if err := s.out.EmitMessage(ctx, "opportunities", strings.Join(lines, "\n")); err != nil {
		log.Warn().Str("coin", coin).Err(err).Msg("Sink emit failed")
	}
}

// sleepOrDone waits the scan interval after a finished cycle.
func (s *Scanner) sleepOrDone(ctx context.Context) bool {
	interval := time.Duration(s.cfg.ScanIntervalSec) * time.Second
	select {
	case <-ctx.Done():
		return false
	case <-time.After(interval):
		return true
	}
}

func recordCycle(mode string, coins int, start time.Time) {
	metrics.ScanCycleDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	metrics.CoinsScanned.WithLabelValues(mode).Set(float64(coins))
}
