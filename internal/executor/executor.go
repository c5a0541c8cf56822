package executor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arbscan/internal/bybitws"
	"arbscan/internal/config"
	"arbscan/internal/metrics"
	"arbscan/internal/sink"
	"arbscan/internal/venue"
	"arbscan/internal/venue/bybit"
	"arbscan/internal/venue/gate"
)

const (
	fillCheckWindow = 6 * time.Second
	fillPollEvery   = 500 * time.Millisecond
	fillEpsilon     = 1e-9

	// wsFillWait bounds the private-stream wait inside the fill window; the
	// REST poll gets the remainder.
	wsFillWait = 2 * time.Second

	// privateStaleAfter marks the private stream as a dead connection: no
	// message for this long means its order events cannot be trusted.
	privateStaleAfter = 30 * time.Second

	flatConfirmWindow = 3 * time.Second
)

// Executor opens and closes one hedged pair at a time: one leg on Bybit,
// one on Gate. Bybit orders go through the trade WebSocket when it is up
// and fall back to REST; Gate is REST only.
type Executor struct {
	bybit *bybit.Client
	gate  *gate.Client
	trade *bybitws.TradeStream   // optional, nil disables WS order entry
	priv  *bybitws.PrivateStream // optional, nil forces REST fill polling
	out   sink.Sink
	cfg   config.Config
}

// New wires the executor. trade and priv may be nil; REST covers both paths.
func New(b *bybit.Client, g *gate.Client, trade *bybitws.TradeStream, priv *bybitws.PrivateStream, out sink.Sink, cfg config.Config) *Executor {
	return &Executor{bybit: b, gate: g, trade: trade, priv: priv, out: out, cfg: cfg}
}

// Position is an open hedged pair.
type Position struct {
	Coin       string
	LongVenue  venue.ID
	ShortVenue venue.ID
	LongLeg    *Leg
	ShortLeg   *Leg

	// Entry fills, used as the fixed base for PnL.
	LongFillPrice  float64
	ShortFillPrice float64
	Qty            float64 // base units, identical on both legs

	OpeningSpreadPct float64
	OpenedAt         time.Time
}

type fillResult struct {
	venue    venue.ID
	filled   bool
	avgPrice float64
	cumQty   float64
	err      error
}

// Open runs the full sequence for one pair: preflight both legs, align the
// quantity, set isolated margin and leverage, check balances, place both
// orders concurrently and verify the fills. Any preflight or margin failure
// aborts before a single order is sent.
func (e *Executor) Open(ctx context.Context, coin string, longVenue, shortVenue venue.ID, notionalUSDT float64) (*Position, error) {
	longAdapter, shortAdapter, err := e.legAdapters(longVenue, shortVenue)
	if err != nil {
		return nil, err
	}

	longLeg, err := PlanLeg(ctx, longAdapter, coin, Buy, notionalUSDT)
	if err != nil {
		return nil, err
	}
	shortLeg, err := PlanLeg(ctx, shortAdapter, coin, Sell, notionalUSDT)
	if err != nil {
		return nil, err
	}
	qty, err := alignQty(longLeg, shortLeg)
	if err != nil {
		return nil, err
	}
	longLeg.Qty = qty
	shortLeg.Qty = qty

	if err := e.setupMargin(ctx, longLeg, shortLeg); err != nil {
		return nil, fmt.Errorf("margin setup: %w", err)
	}
	if err := e.checkBalances(ctx, notionalUSDT); err != nil {
		return nil, err
	}

	openingSpread := (shortLeg.LimitPrice - longLeg.LimitPrice) / longLeg.LimitPrice * 100
	log.Info().Str("coin", coin).
		Str("long", string(longVenue)).Str("short", string(shortVenue)).
		Float64("qty", qty).Float64("opening_spread_pct", openingSpread).
		Msg("Opening hedged pair")

	pos := &Position{
		Coin:             coin,
		LongVenue:        longVenue,
		ShortVenue:       shortVenue,
		LongLeg:          longLeg,
		ShortLeg:         shortLeg,
		Qty:              qty,
		OpeningSpreadPct: openingSpread,
		OpenedAt:         time.Now(),
	}
	if err := e.placeBoth(ctx, pos, false); err != nil {
		return pos, err
	}
	return pos, nil
}

// Close places reducing orders on both legs, reversed against the entry
// sides, and verifies they execute.
func (e *Executor) Close(ctx context.Context, pos *Position) error {
	log.Info().Str("coin", pos.Coin).Msg("Closing hedged pair")
	closing := &Position{
		Coin:       pos.Coin,
		LongVenue:  pos.LongVenue,
		ShortVenue: pos.ShortVenue,
		LongLeg:    reversedLeg(pos.LongLeg),
		ShortLeg:   reversedLeg(pos.ShortLeg),
		Qty:        pos.Qty,
	}
	if err := e.refreshLimitPrices(ctx, closing); err != nil {
		return err
	}
	if err := e.placeBoth(ctx, closing, true); err != nil {
		return err
	}
	e.confirmFlat(ctx, pos.bybitLeg())
	return nil
}

func (pos *Position) bybitLeg() *Leg {
	for _, leg := range []*Leg{pos.LongLeg, pos.ShortLeg} {
		if leg != nil && leg.Venue == venue.Bybit {
			return leg
		}
	}
	return nil
}

// confirmFlat waits briefly for the private stream to reflect a flat Bybit
// position after a reduce. The fills are already verified; this only catches
// a residual the order path could not see.
func (e *Executor) confirmFlat(ctx context.Context, leg *Leg) {
	if e.priv == nil || leg == nil {
		return
	}
	deadline := time.After(flatConfirmWindow)
	for {
		if size, at, ok := e.priv.NetExposure(leg.Symbol); ok && size <= fillEpsilon {
			log.Info().Str("symbol", leg.Symbol).Time("as_of", at).
				Msg("Bybit position confirmed flat")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			if size, _, ok := e.priv.NetExposure(leg.Symbol); ok && size > fillEpsilon {
				log.Warn().Str("symbol", leg.Symbol).Float64("size", size).
					Msg("Bybit still reports exposure after close")
			}
			return
		case <-e.priv.PositionUpdates():
		}
	}
}

func (e *Executor) privStale() bool {
	age, seen := e.priv.Staleness()
	return seen && age > privateStaleAfter
}

func reversedLeg(l *Leg) *Leg {
	r := *l
	if l.Side == Buy {
		r.Side = Sell
	} else {
		r.Side = Buy
	}
	return &r
}

// refreshLimitPrices re-quotes both legs so reducing orders cross the
// current book instead of the entry prices.
func (e *Executor) refreshLimitPrices(ctx context.Context, pos *Position) error {
	for _, leg := range []*Leg{pos.LongLeg, pos.ShortLeg} {
		a, err := e.adapterFor(leg.Venue)
		if err != nil {
			return err
		}
		t, err := a.FuturesTicker(ctx, leg.Coin)
		if err != nil || t == nil {
			return fmt.Errorf("requote %s on %s: %w", leg.Coin, leg.Venue, err)
		}
		ref := t.Ask
		if leg.Side == Sell {
			ref = t.Bid
		}
		if ref <= 0 {
			return fmt.Errorf("requote: no %s quote for %s on %s", leg.Side, leg.Coin, leg.Venue)
		}
		leg.LimitPrice = RoundPrice(ref, leg.Instrument.TickSize, leg.Side)
	}
	return nil
}

func (e *Executor) legAdapters(longVenue, shortVenue venue.ID) (venue.Adapter, venue.Adapter, error) {
	if longVenue == shortVenue {
		return nil, nil, fmt.Errorf("long and short venue are the same: %s", longVenue)
	}
	long, err := e.adapterFor(longVenue)
	if err != nil {
		return nil, nil, err
	}
	short, err := e.adapterFor(shortVenue)
	if err != nil {
		return nil, nil, err
	}
	return long, short, nil
}

func (e *Executor) adapterFor(id venue.ID) (venue.Adapter, error) {
	switch id {
	case venue.Bybit:
		if e.bybit == nil {
			return nil, fmt.Errorf("bybit trading client not configured")
		}
		return e.bybit, nil
	case venue.Gate:
		if e.gate == nil {
			return nil, fmt.Errorf("gate trading client not configured")
		}
		return e.gate, nil
	}
	return nil, fmt.Errorf("execution is only supported on bybit and gate, got %s", id)
}

// alignQty picks the largest quantity both legs can express: the smaller of
// the two preflight quantities, stepped down to each leg's granularity.
func alignQty(long, short *Leg) (float64, error) {
	qty := math.Min(long.Qty, short.Qty)
	for _, leg := range []*Leg{long, short} {
		step := leg.Instrument.QtyStep
		if leg.Venue == venue.Gate && leg.Instrument.QuantoMultiplier > 0 {
			step = leg.Instrument.QuantoMultiplier
		}
		qty = RoundQtyDown(qty, step)
	}
	if qty <= 0 || qty < long.Instrument.MinOrderQty || qty < short.Instrument.MinOrderQty {
		return 0, fmt.Errorf("aligned qty %.8f below venue minimums (%.8f / %.8f)",
			qty, long.Instrument.MinOrderQty, short.Instrument.MinOrderQty)
	}
	return qty, nil
}

// setupMargin sets isolated margin and the configured leverage on both legs.
// Any failure here is fatal: no order is ever sent on a half-configured pair.
func (e *Executor) setupMargin(ctx context.Context, legs ...*Leg) error {
	leverage := e.cfg.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	for _, leg := range legs {
		var err error
		switch leg.Venue {
		case venue.Bybit:
			err = e.bybit.SetLeverage(ctx, leg.Symbol, leverage)
		case venue.Gate:
			err = e.gate.SetLeverage(ctx, leg.Coin, leverage)
		}
		if err != nil {
			return fmt.Errorf("set leverage %g on %s %s: %w", leverage, leg.Venue, leg.Symbol, err)
		}
	}
	return nil
}

func (e *Executor) checkBalances(ctx context.Context, notionalUSDT float64) error {
	leverage := e.cfg.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	required := notionalUSDT / leverage
	for _, check := range []struct {
		id venue.ID
		fn func(context.Context) (float64, error)
	}{
		{venue.Bybit, e.bybit.AvailableUSDT},
		{venue.Gate, e.gate.AvailableUSDT},
	} {
		avail, err := check.fn(ctx)
		if err != nil {
			return fmt.Errorf("balance check on %s: %w", check.id, err)
		}
		if avail < required {
			return fmt.Errorf("insufficient balance on %s: %.2f USDT available, %.2f required",
				check.id, avail, required)
		}
	}
	return nil
}

// placeBoth submits the two legs concurrently and verifies both fills. A
// single filled leg is reported to the sink as unhedged risk.
func (e *Executor) placeBoth(ctx context.Context, pos *Position, reducing bool) error {
	results := make([]fillResult, 2)
	var wg sync.WaitGroup
	for i, leg := range []*Leg{pos.LongLeg, pos.ShortLeg} {
		wg.Add(1)
		go func(i int, leg *Leg) {
			defer wg.Done()
			results[i] = e.placeAndVerify(ctx, leg, reducing)
		}(i, leg)
	}
	wg.Wait()

	long, short := results[0], results[1]
	if long.filled && short.filled {
		pos.LongFillPrice = long.avgPrice
		pos.ShortFillPrice = short.avgPrice
		if pos.LongFillPrice <= 0 {
			pos.LongFillPrice = pos.LongLeg.LimitPrice
		}
		if pos.ShortFillPrice <= 0 {
			pos.ShortFillPrice = pos.ShortLeg.LimitPrice
		}
		metrics.PositionsOpen.Add(legDelta(reducing))
		log.Info().Str("coin", pos.Coin).
			Float64("long_fill", pos.LongFillPrice).Float64("short_fill", pos.ShortFillPrice).
			Msg("Both legs executed")
		return nil
	}

	if long.filled != short.filled {
		filled, unfilled := long, short
		if short.filled {
			filled, unfilled = short, long
		}
		msg := fmt.Sprintf("⚠️ %s: нога %s исполнена (%.8f), нога %s НЕ исполнена — позиция не захеджирована",
			pos.Coin, filled.venue, filled.cumQty, unfilled.venue)
		log.Error().Str("coin", pos.Coin).Msg(msg)
		if err := e.out.EmitMessage(ctx, "alerts", msg); err != nil {
			log.Warn().Err(err).Msg("Unhedged alert emit failed")
		}
		return fmt.Errorf("unhedged: %s leg filled, %s leg did not (%v)",
			filled.venue, unfilled.venue, unfilled.err)
	}
	return fmt.Errorf("neither leg filled: long %v, short %v", long.err, short.err)
}

func legDelta(reducing bool) float64 {
	if reducing {
		return -1
	}
	return 1
}

func (e *Executor) placeAndVerify(ctx context.Context, leg *Leg, reducing bool) fillResult {
	res := fillResult{venue: leg.Venue}
	start := time.Now()
	switch leg.Venue {
	case venue.Bybit:
		orderID, err := e.placeBybit(ctx, leg, reducing)
		if err != nil {
			res.err = err
			metrics.OrderErrors.WithLabelValues(string(leg.Venue)).Inc()
			return res
		}
		metrics.OrdersPlaced.WithLabelValues(string(leg.Venue), string(leg.Side)).Inc()
		res = e.verifyBybitFill(ctx, leg, orderID)
	case venue.Gate:
		orderID, err := e.placeGate(ctx, leg, reducing)
		if err != nil {
			res.err = err
			metrics.OrderErrors.WithLabelValues(string(leg.Venue)).Inc()
			return res
		}
		metrics.OrdersPlaced.WithLabelValues(string(leg.Venue), string(leg.Side)).Inc()
		res = e.verifyGateFill(ctx, leg, orderID)
	default:
		res.err = fmt.Errorf("no execution path for %s", leg.Venue)
	}
	if res.filled {
		metrics.FillLatency.WithLabelValues(string(leg.Venue)).Observe(time.Since(start).Seconds())
	}
	return res
}

// placeBybit prefers the trade WebSocket and falls back to REST on any WS
// error: the REST path is slower but never ambiguous.
func (e *Executor) placeBybit(ctx context.Context, leg *Leg, reducing bool) (string, error) {
	qtyStr := formatStep(leg.Qty, leg.Instrument.QtyStep)
	priceStr := formatStep(leg.LimitPrice, leg.Instrument.TickSize)

	if e.trade != nil && e.trade.IsConnected() {
		order := map[string]interface{}{
			"category":    "linear",
			"symbol":      leg.Symbol,
			"side":        string(leg.Side),
			"orderType":   "Limit",
			"qty":         qtyStr,
			"price":       priceStr,
			"timeInForce": "IOC",
			"positionIdx": 0,
		}
		if reducing {
			order["reduceOnly"] = true
		}
		resp, err := e.trade.CreateOrder(ctx, order)
		if err == nil {
			log.Info().Str("order_id", resp.OrderID).Dur("latency", resp.Latency).
				Msg("Bybit order placed via trade stream")
			return resp.OrderID, nil
		}
		log.Warn().Err(err).Msg("Trade stream order failed, falling back to REST")
	}

	return e.bybit.CreateOrder(ctx, bybit.OrderRequest{
		Symbol:      leg.Symbol,
		Side:        string(leg.Side),
		OrderType:   "Limit",
		Qty:         qtyStr,
		Price:       priceStr,
		TimeInForce: "IOC",
		ReduceOnly:  reducing,
	})
}

func (e *Executor) placeGate(ctx context.Context, leg *Leg, reducing bool) (int64, error) {
	contracts, err := GateContracts(leg.Qty, leg.Instrument, leg.Side)
	if err != nil {
		return 0, err
	}
	info, err := e.gate.PlaceOrder(ctx, gate.OrderRequest{
		Contract:   leg.Symbol,
		Size:       contracts,
		Price:      formatStep(leg.LimitPrice, leg.Instrument.TickSize),
		TIF:        "ioc",
		ReduceOnly: reducing,
	})
	if err != nil {
		return 0, err
	}
	return info.ID, nil
}

// verifyBybitFill combines the private stream (fast path) with REST order
// polling. The stream gets a short slice of the window so a missed event
// still leaves time for the poll; a stale stream is skipped outright.
func (e *Executor) verifyBybitFill(ctx context.Context, leg *Leg, orderID string) fillResult {
	res := fillResult{venue: venue.Bybit}
	wctx, cancel := context.WithTimeout(ctx, fillCheckWindow)
	defer cancel()

	if e.priv != nil && !e.privStale() {
		sctx, scancel := context.WithTimeout(wctx, wsFillWait)
		u, err := e.priv.WaitForFinal(sctx, orderID)
		scancel()
		if err == nil {
			res.cumQty = u.CumExecQty
			res.avgPrice = u.AvgPrice
			res.filled = u.CumExecQty+fillEpsilon >= leg.Qty
			if !res.filled {
				res.err = fmt.Errorf("bybit order %s ended %s with %.8f of %.8f filled",
					orderID, u.Status, u.CumExecQty, leg.Qty)
			}
			return res
		}
	}

	ticker := time.NewTicker(fillPollEvery)
	defer ticker.Stop()
	for {
		info, err := e.bybit.GetOrder(ctx, leg.Symbol, orderID)
		if err == nil && info != nil {
			res.cumQty = venue.F(info.CumExecQty)
			res.avgPrice = venue.F(info.AvgPrice)
			if res.cumQty+fillEpsilon >= leg.Qty {
				res.filled = true
				return res
			}
			if finalBybitStatus(info.OrderStatus) {
				res.err = fmt.Errorf("bybit order %s ended %s with %.8f of %.8f filled",
					orderID, info.OrderStatus, res.cumQty, leg.Qty)
				return res
			}
		}
		select {
		case <-wctx.Done():
			res.err = fmt.Errorf("bybit order %s not confirmed within %s", orderID, fillCheckWindow)
			return res
		case <-ticker.C:
		}
	}
}

func finalBybitStatus(status string) bool {
	switch status {
	case "Filled", "Cancelled", "Rejected", "Deactivated", "PartiallyFilledCanceled":
		return true
	}
	return false
}

func (e *Executor) verifyGateFill(ctx context.Context, leg *Leg, orderID int64) fillResult {
	res := fillResult{venue: venue.Gate}
	wctx, cancel := context.WithTimeout(ctx, fillCheckWindow)
	defer cancel()

	mult := leg.Instrument.QuantoMultiplier
	if mult <= 0 {
		mult = 1
	}
	ticker := time.NewTicker(fillPollEvery)
	defer ticker.Stop()
	for {
		info, err := e.gate.GetOrder(ctx, orderID)
		if err == nil && info != nil && info.Status == "finished" {
			filledContracts := info.Size - info.Left
			if filledContracts < 0 {
				filledContracts = -filledContracts
			}
			res.cumQty = float64(filledContracts) * mult
			res.avgPrice = venue.F(info.FillPrice)
			res.filled = res.cumQty+fillEpsilon >= leg.Qty
			if !res.filled {
				res.err = fmt.Errorf("gate order %d finished as %s with %.8f of %.8f filled",
					orderID, info.FinishAs, res.cumQty, leg.Qty)
			}
			return res
		}
		select {
		case <-wctx.Done():
			res.err = fmt.Errorf("gate order %d not confirmed within %s", orderID, fillCheckWindow)
			return res
		case <-ticker.C:
		}
	}
}

// formatStep renders a value with the decimal precision its step implies,
// avoiding float noise like 0.30000000000000004 in order payloads.
func formatStep(v, step float64) string {
	return strconv.FormatFloat(v, 'f', stepDecimals(step), 64)
}

func stepDecimals(step float64) int {
	if step <= 0 {
		return 8
	}
	s := strconv.FormatFloat(step, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return len(s) - i - 1
		}
	}
	return 0
}
