package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"arbscan/internal/bybitws"
	"arbscan/internal/evaluator"
	"arbscan/internal/executor"
	"arbscan/internal/opinput"
	"arbscan/internal/venue"
)

func scanPricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-prices",
		Short: "Run the price-spread scanner loop",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := newApp()
			exitOnErr(err)
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()
			log.Info().Float64("min_spread_pct", a.cfg.MinSpread).Msg("Starting price scan")
			a.scanner().RunPriceScan(ctx)
		},
	}
}

func scanFundingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan-fundings",
		Short: "Run the funding-spread scanner loop",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := newApp()
			exitOnErr(err)
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()
			log.Info().Float64("min_funding_spread_pct", a.cfg.MinFundingSpread).Msg("Starting funding scan")
			a.scanner().RunFundingScan(ctx)
		},
	}
}

func newsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "news COIN [venue]",
		Short: "Check delisting and security news for a coin",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			a, err := newApp()
			exitOnErr(err)
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			coin := strings.ToUpper(args[0])
			venues := venue.All()
			if len(args) == 2 {
				id := venue.ID(strings.ToLower(args[1]))
				if !venue.Valid(id) {
					log.Fatal().Str("venue", args[1]).Msg("Unknown venue")
				}
				venues = []venue.ID{id}
			}

			engine := a.newsEngine()
			for _, v := range venues {
				report := engine.CheckCoin(ctx, coin, v)
				switch {
				case report.HasDelisting():
					for _, item := range report.Delisting {
						fmt.Printf("%s %s: делистинг — %s (%s)\n", coin, v, item.Title, item.URL)
					}
				case report.HasSecurity():
					for _, item := range report.Security {
						fmt.Printf("%s %s: безопасность — %s (%s)\n", coin, v, item.Title, item.URL)
					}
				default:
					fmt.Printf("%s %s: чисто\n", coin, v)
				}
			}
		},
	}
}

// tradeCmd runs the operator flow: analyze the requested pair, then ask
// whether to open it. "Да[, X%]" opens both legs and monitors until the
// closing spread reaches the threshold; "Нет" offers a watch-only monitor
// that never places orders.
func tradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `trade "COIN Long (venue), Short (venue) [amount]"`,
		Short: "Analyze a pair, then open it or watch it until the spread converges",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a, err := newApp()
			exitOnErr(err)
			defer a.close()

			tc, err := opinput.ParseTrade(strings.Join(args, " "))
			exitOnErr(err)
			notional := tc.NotionalUSDT
			if notional <= 0 {
				notional = a.cfg.ScanCoinInvest
			}

			ctx, cancel := signalContext()
			defer cancel()

			analyzePair(ctx, a, tc, notional)

			in := bufio.NewScanner(os.Stdin)
			fmt.Println("\nОткрыть позиции в лонг и шорт? Введите 'Да' или 'Нет'; с 'Да' можно указать порог закрытия, например 'Да, 0.5'.")
			first, ok := askOperator(in)
			if !ok {
				log.Info().Msg("Интерактивный ввод недоступен, выход без открытия позиций")
				return
			}
			if first.Yes {
				runPair(ctx, cancel, a, tc, notional, first.ThresholdPct, in)
				return
			}

			fmt.Println("\nВключить мониторинг без открытия позиций? Введите 'Да' (опционально порог оповещения, например 'Да, 0.5') или 'Нет'.")
			second, ok := askOperator(in)
			if !ok || !second.Yes {
				log.Info().Msg("Мониторинг не запущен")
				return
			}
			err = executor.Watch(ctx, a.reg.All(), a.out,
				tc.Coin, tc.LongVenue, tc.ShortVenue, notional, second.ThresholdPct)
			if err != nil && ctx.Err() == nil {
				log.Fatal().Err(err).Msg("Watch failed")
			}
			log.Info().Str("coin", tc.Coin).Msg("Done")
		},
	}
}

// analyzePair prints the same verdict line the scanner would emit for this
// pair, so the operator decides on fresh numbers.
func analyzePair(ctx context.Context, a *app, tc *opinput.TradeCommand, notional float64) {
	long := fetchLegData(ctx, a, tc.LongVenue, tc.Coin)
	short := fetchLegData(ctx, a, tc.ShortVenue, tc.Coin)
	if long == nil || short == nil {
		log.Fatal().Str("coin", tc.Coin).Msg("No market data for one of the legs")
	}
	opp := a.eval.Evaluate(ctx, tc.Coin, *long, *short, evaluator.Config{
		Mode:         evaluator.ModePriceArb,
		NotionalUSDT: notional,
	})
	if opp == nil {
		log.Fatal().Str("coin", tc.Coin).Msg("Pair carries no usable quotes")
	}
	fmt.Println(opp.Line())
}

func fetchLegData(ctx context.Context, a *app, id venue.ID, coin string) *evaluator.VenueData {
	ad, ok := a.reg.All()[id]
	if !ok {
		log.Error().Str("venue", string(id)).Msg("Venue excluded or unknown")
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, a.cfg.ExchangeTimeout())
	defer cancel()
	ticker, err := ad.FuturesTicker(cctx, coin)
	if err != nil || ticker == nil {
		log.Error().Str("coin", coin).Str("venue", string(id)).Err(err).Msg("Ticker unavailable")
		return nil
	}
	funding, err := ad.FundingInfo(cctx, coin)
	if err != nil {
		log.Debug().Str("coin", coin).Str("venue", string(id)).Err(err).Msg("Funding unavailable")
	}
	return &evaluator.VenueData{Venue: id, Ticker: ticker, Funding: funding}
}

// askOperator reads one reply line. ok is false when stdin cannot answer:
// not a terminal, BOT_NO_PROMPT=1, or EOF. A reply that parses as neither
// Да nor Нет counts as Нет.
func askOperator(in *bufio.Scanner) (*opinput.Confirmation, bool) {
	if os.Getenv("BOT_NO_PROMPT") == "1" || !stdinIsTerminal() {
		return nil, false
	}
	if !in.Scan() {
		return nil, false
	}
	c, err := opinput.ParseConfirmation(strings.TrimSpace(in.Text()))
	if err != nil {
		log.Warn().Err(err).Msg("Unrecognized reply, treating as Нет")
		return &opinput.Confirmation{}, true
	}
	return c, true
}

func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// runPair opens the hedged pair and monitors it until the closing spread
// converges. A "Да" on stdin closes early; an interrupt mid-monitor closes
// the pair before exit.
func runPair(ctx context.Context, cancel context.CancelFunc, a *app,
	tc *opinput.TradeCommand, notional, thresholdPct float64, in *bufio.Scanner) {
	exitOnErr(a.cfg.RequireTradingCreds())

	var trade *bybitws.TradeStream
	var priv *bybitws.PrivateStream
	if tc.LongVenue == venue.Bybit || tc.ShortVenue == venue.Bybit {
		trade = bybitws.NewTradeStream(a.cfg.BybitAPIKey, a.cfg.BybitAPISecret)
		if err := trade.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Trade stream unavailable, orders go through REST")
			trade = nil
		} else {
			defer trade.Stop()
		}
		priv = bybitws.NewPrivateStream(a.cfg.BybitAPIKey, a.cfg.BybitAPISecret)
		if err := priv.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Private stream unavailable, fills verified through REST")
			priv = nil
		} else {
			defer priv.Stop()
		}
	}

	exec := executor.New(a.reg.Bybit, a.reg.Gate, trade, priv, a.out, a.cfg)
	pos, err := exec.Open(ctx, tc.Coin, tc.LongVenue, tc.ShortVenue, notional)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open pair")
	}
	log.Info().Str("coin", pos.Coin).
		Float64("opening_spread_pct", pos.OpeningSpreadPct).
		Msg("Pair opened, monitoring until the spread converges")

	// the operator can close early from stdin while the monitor runs
	closeNow := make(chan float64, 1)
	go readCloseRequests(in, closeNow)

	done := make(chan error, 1)
	go func() { done <- exec.Monitor(ctx, pos, thresholdPct) }()

	select {
	case override := <-closeNow:
		cancel()
		<-done
		if override > 0 {
			log.Info().Float64("threshold_pct", override).Msg("Manual close requested")
		}
		closePair(exec, pos)
	case err := <-done:
		if err == nil {
			break // the monitor closed the pair on its trigger
		}
		if ctx.Err() != nil {
			log.Info().Str("coin", pos.Coin).Msg("Monitoring interrupted, closing the pair")
			closePair(exec, pos)
			break
		}
		log.Fatal().Err(err).Msg("Monitor failed")
	}
	log.Info().Str("coin", pos.Coin).Msg("Done")
}

// closePair closes with a fresh signal context so a second interrupt can
// still abort the close itself.
func closePair(exec *executor.Executor, pos *executor.Position) {
	cctx, ccancel := signalContext()
	defer ccancel()
	if err := exec.Close(cctx, pos); err != nil {
		log.Fatal().Err(err).Msg("Close failed")
	}
}

// readCloseRequests parses operator replies on stdin while the monitor
// runs: "Да" (optionally with a threshold) requests an immediate close,
// "Нет" keeps monitoring.
func readCloseRequests(in *bufio.Scanner, closeNow chan<- float64) {
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		c, err := opinput.ParseConfirmation(line)
		if err != nil {
			log.Warn().Err(err).Msg("Unrecognized reply")
			continue
		}
		if c.Yes {
			closeNow <- c.ThresholdPct
			return
		}
		log.Info().Msg("Продолжаю мониторинг")
	}
}

// wsProbeCmd streams one symbol's top-of-book from the public WebSocket and
// prints a line per second, a quick check that the stream stays fresh.
func wsProbeCmd() *cobra.Command {
	var seconds int
	cmd := &cobra.Command{
		Use:   "ws-probe SYMBOL",
		Short: "Print live Bybit top-of-book once a second",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			symbol := strings.ToUpper(args[0])
			if !strings.HasSuffix(symbol, "USDT") {
				symbol += "USDT"
			}

			ctx, cancel := signalContext()
			defer cancel()

			ms := bybitws.NewMarketStream(symbol)
			if err := ms.Start(ctx); err != nil {
				log.Fatal().Err(err).Msg("WebSocket connect failed")
			}
			defer ms.Stop()

			log.Info().Str("symbol", symbol).Msg("Waiting for the stream to become ready")
			deadline := time.Now().Add(15 * time.Second)
			for !ms.IsReady(5*time.Second) && time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
			}
			if !ms.IsReady(5 * time.Second) {
				log.Warn().Str("symbol", symbol).Msg("Stream not ready after 15s, printing anyway")
			}

			fmt.Printf("%-7s | %-15s | %-15s | %-15s | %s\n",
				"время", "best_bid", "best_ask", "last_trade", "staleness_ms")
			start := time.Now()
			tick := time.NewTicker(time.Second)
			defer tick.Stop()
			for i := 0; i < seconds; i++ {
				select {
				case <-ctx.Done():
					return
				case <-tick.C:
				}
				st := ms.State()
				fmt.Printf("%6.1fs | %15s | %15s | %15s | %s\n",
					time.Since(start).Seconds(),
					fmtQuote(st.BestBid), fmtQuote(st.BestAsk), fmtQuote(st.LastTrade),
					fmtStaleness(st))
			}
		},
	}
	cmd.Flags().IntVar(&seconds, "seconds", 20, "probe duration in seconds")
	return cmd
}

func fmtQuote(v float64) string {
	if v <= 0 {
		return "N/A"
	}
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// fmtStaleness reports the age of the oldest field that has ever updated.
func fmtStaleness(st bybitws.MarketState) string {
	now := time.Now()
	oldest := -1.0
	for _, ts := range []time.Time{st.BidAskAt, st.TradeAt, st.TickerAt} {
		if ts.IsZero() {
			continue
		}
		if age := float64(now.Sub(ts).Milliseconds()); age > oldest {
			oldest = age
		}
	}
	if oldest < 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", oldest)
}
