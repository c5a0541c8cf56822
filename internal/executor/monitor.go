package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/sink"
	"arbscan/internal/venue"
)

const (
	monitorPollEvery = 1 * time.Second

	// Taker fee rates for the round trip; used for the PnL estimate only,
	// the venue settles the real fee.
	bybitTakerFee = 0.00055
	gateTakerFee  = 0.0005

	// Flat per-leg fee estimate for watch mode, where no real fill exists.
	watchFeeUSDT = 0.05

	autoCloseAlerts = 3
	autoCloseWindow = 60 * time.Second
)

// Snapshot is one monitor tick: current quotes, the closing spread and the
// estimated PnL per leg.
type Snapshot struct {
	At               time.Time
	BidLong          float64
	AskShort         float64
	ClosingSpreadPct float64
	PnLLong          float64
	PnLShort         float64
}

// PnLTotal is the combined estimate across both legs.
func (s *Snapshot) PnLTotal() float64 { return s.PnLLong + s.PnLShort }

// Monitor polls both legs once a second until the closing spread converges
// inside the threshold. Each trigger sends a close alert to the sink,
// throttled by the close interval; three alerts inside a minute close the
// pair automatically. Returns once the position is closed or ctx ends.
func (e *Executor) Monitor(ctx context.Context, pos *Position, closeThresholdPct float64) error {
	if closeThresholdPct <= 0 {
		closeThresholdPct = e.cfg.CloseSpread
	}
	throttle := time.Duration(e.cfg.CloseIntervalSec) * time.Second
	if throttle <= 0 {
		throttle = 60 * time.Second
	}

	longAdapter, shortAdapter, err := e.legAdapters(pos.LongVenue, pos.ShortVenue)
	if err != nil {
		return err
	}

	var lastAlert time.Time
	var alertTimes []time.Time

	ticker := time.NewTicker(monitorPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		snap, err := e.snapshot(ctx, pos, longAdapter, shortAdapter)
		if err != nil {
			log.Debug().Str("coin", pos.Coin).Err(err).Msg("Monitor tick skipped")
			continue
		}
		log.Debug().Str("coin", pos.Coin).
			Float64("closing_spread_pct", snap.ClosingSpreadPct).
			Float64("pnl", snap.PnLTotal()).Msg("Monitor tick")

		if math.Abs(snap.ClosingSpreadPct) > closeThresholdPct {
			continue
		}

		now := snap.At
		alertTimes = pruneOlderThan(alertTimes, now.Add(-autoCloseWindow))
		alertTimes = append(alertTimes, now)

		if len(alertTimes) >= autoCloseAlerts {
			msg := fmt.Sprintf("%s: спред сошёлся до %.3f%% (порог %.3f%%), PnL ≈ %.2f USDT — закрываю позицию",
				pos.Coin, snap.ClosingSpreadPct, closeThresholdPct, snap.PnLTotal())
			log.Info().Str("coin", pos.Coin).Msg(msg)
			if err := e.out.EmitMessage(ctx, "alerts", msg); err != nil {
				log.Warn().Err(err).Msg("Close alert emit failed")
			}
			return e.Close(ctx, pos)
		}

		if now.Sub(lastAlert) < throttle {
			continue
		}
		lastAlert = now
		msg := fmt.Sprintf("%s Long (%s), Short (%s): спред закрытия %.3f%% ≤ %.3f%%, PnL ≈ %.2f USDT. Закрыть позицию?",
			pos.Coin, pos.LongVenue, pos.ShortVenue,
			snap.ClosingSpreadPct, closeThresholdPct, snap.PnLTotal())
		log.Info().Str("coin", pos.Coin).Msg(msg)
		if err := e.out.EmitMessage(ctx, "alerts", msg); err != nil {
			log.Warn().Err(err).Msg("Close alert emit failed")
		}
	}
}

// snapshot quotes both legs and computes the closing spread against the
// prices the close would actually trade at: sell the long into its bid, buy
// the short back at its ask.
func (e *Executor) snapshot(ctx context.Context, pos *Position, longAdapter, shortAdapter venue.Adapter) (*Snapshot, error) {
	tLong, err := longAdapter.FuturesTicker(ctx, pos.Coin)
	if err != nil || tLong == nil {
		return nil, fmt.Errorf("long ticker: %w", err)
	}
	tShort, err := shortAdapter.FuturesTicker(ctx, pos.Coin)
	if err != nil || tShort == nil {
		return nil, fmt.Errorf("short ticker: %w", err)
	}
	if tLong.Bid <= 0 || tShort.Ask <= 0 {
		return nil, fmt.Errorf("incomplete quotes: long bid %.8f, short ask %.8f", tLong.Bid, tShort.Ask)
	}

	feeLong := pos.LongFillPrice * pos.Qty * feeRate(pos.LongVenue)
	feeShort := pos.ShortFillPrice * pos.Qty * feeRate(pos.ShortVenue)

	return &Snapshot{
		At:               time.Now(),
		BidLong:          tLong.Bid,
		AskShort:         tShort.Ask,
		ClosingSpreadPct: (tLong.Bid - tShort.Ask) / tShort.Ask * 100,
		PnLLong:          (tLong.Bid-pos.LongFillPrice)*pos.Qty - feeLong,
		PnLShort:         (pos.ShortFillPrice-tShort.Ask)*pos.Qty - feeShort,
	}, nil
}

// Watch follows a pair the operator declined to open. Entry prices are
// frozen from the first complete tick, as if the pair had opened there; PnL
// is theoretical with a flat fee per leg. When the closing spread reaches
// the threshold the sink gets one notification and the watch ends, no
// orders are placed. A zero threshold watches until ctx is cancelled.
func Watch(ctx context.Context, adapters map[venue.ID]venue.Adapter, out sink.Sink,
	coin string, longVenue, shortVenue venue.ID, notionalUSDT, thresholdPct float64) error {
	long, ok := adapters[longVenue]
	if !ok {
		return fmt.Errorf("no adapter for %s", longVenue)
	}
	short, ok := adapters[shortVenue]
	if !ok {
		return fmt.Errorf("no adapter for %s", shortVenue)
	}

	if thresholdPct > 0 {
		log.Info().Str("coin", coin).Float64("threshold_pct", thresholdPct).
			Msg("Watch started, notify-only on trigger")
	} else {
		log.Info().Str("coin", coin).Msg("Watch started without a trigger threshold")
	}

	var askLongOpen, bidShortOpen, qty float64

	ticker := time.NewTicker(monitorPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		tLong, err := long.FuturesTicker(ctx, coin)
		if err != nil || tLong == nil || tLong.Bid <= 0 || tLong.Ask <= 0 {
			log.Debug().Str("coin", coin).Str("venue", string(longVenue)).Err(err).Msg("Watch tick skipped")
			continue
		}
		tShort, err := short.FuturesTicker(ctx, coin)
		if err != nil || tShort == nil || tShort.Bid <= 0 || tShort.Ask <= 0 {
			log.Debug().Str("coin", coin).Str("venue", string(shortVenue)).Err(err).Msg("Watch tick skipped")
			continue
		}

		if askLongOpen == 0 {
			askLongOpen = tLong.Ask
			bidShortOpen = tShort.Bid
			qty = notionalUSDT / askLongOpen
			log.Info().Str("coin", coin).
				Float64("ask_long_open", askLongOpen).
				Float64("bid_short_open", bidShortOpen).
				Float64("opening_spread_pct", (bidShortOpen-askLongOpen)/askLongOpen*100).
				Float64("qty", qty).
				Msg("Watch entry prices frozen")
		}

		closing := (tLong.Bid - tShort.Ask) / tShort.Ask * 100
		pnl := (tLong.Bid-askLongOpen)*qty - watchFeeUSDT +
			(bidShortOpen-tShort.Ask)*qty - watchFeeUSDT
		log.Debug().Str("coin", coin).
			Float64("closing_spread_pct", closing).
			Float64("pnl", pnl).Msg("Watch tick")

		if thresholdPct <= 0 || math.Abs(closing) > thresholdPct {
			continue
		}
		msg := fmt.Sprintf("%s Long (%s), Short (%s): спред закрытия %.3f%% ≤ %.3f%%, теоретический PnL ≈ %.2f USDT (позиции не открывались)",
			coin, longVenue, shortVenue, closing, thresholdPct, pnl)
		log.Info().Str("coin", coin).Msg(msg)
		if err := out.EmitMessage(ctx, "alerts", msg); err != nil {
			log.Warn().Err(err).Msg("Watch alert emit failed")
		}
		return nil
	}
}

func feeRate(id venue.ID) float64 {
	if id == venue.Gate {
		return gateTakerFee
	}
	return bybitTakerFee
}

func pruneOlderThan(times []time.Time, cutoff time.Time) []time.Time {
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
