// Package executor opens and closes paired positions: preflight sizing,
// margin setup, concurrent placement on Bybit and Gate, fill verification
// and the monitor-until-close loop.
package executor

import (
	"context"
	"fmt"
	"math"

	"arbscan/internal/venue"
)

// Side is the order direction of one leg.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Leg is one side of the paired trade after preflight.
type Leg struct {
	Venue      venue.ID
	Coin       string
	Symbol     string
	Side       Side
	Qty        float64 // base units, stepped
	LimitPrice float64 // tick-rounded in the aggressive direction
	Instrument *venue.Instrument
}

// RoundQtyDown floors qty to the instrument step.
func RoundQtyDown(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step+1e-9) * step
}

// RoundPrice rounds a limit price to the tick, aggressively: Buy rounds up
// so the order crosses, Sell rounds down.
func RoundPrice(price, tick float64, side Side) float64 {
	if tick <= 0 {
		return price
	}
	ticks := price / tick
	if side == Buy {
		return math.Ceil(ticks-1e-9) * tick
	}
	return math.Floor(ticks+1e-9) * tick
}

// PlanLeg runs preflight for one leg: reference price from the opposing
// top-of-book, qty stepped down from the notional, and the limit price
// rounded toward immediate execution.
func PlanLeg(ctx context.Context, a venue.Adapter, coin string, side Side, notionalUSDT float64) (*Leg, error) {
	ticker, err := a.FuturesTicker(ctx, coin)
	if err != nil {
		return nil, fmt.Errorf("preflight ticker %s/%s: %w", a.ID(), coin, err)
	}
	if ticker == nil {
		return nil, fmt.Errorf("preflight: %s does not list %s", a.ID(), coin)
	}
	refPrice := ticker.Ask
	if side == Sell {
		refPrice = ticker.Bid
	}
	if refPrice <= 0 {
		return nil, fmt.Errorf("preflight: no %s quote for %s on %s", side, coin, a.ID())
	}

	inst, err := a.Instrument(ctx, coin)
	if err != nil {
		return nil, fmt.Errorf("preflight instrument %s/%s: %w", a.ID(), coin, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("preflight: no instrument for %s on %s", coin, a.ID())
	}

	qty := RoundQtyDown(notionalUSDT/refPrice, inst.QtyStep)
	if qty <= 0 || qty < inst.MinOrderQty {
		return nil, fmt.Errorf("preflight: qty %.8f below minimum %.8f for %s on %s (notional %.2f USDT)",
			qty, inst.MinOrderQty, coin, a.ID(), notionalUSDT)
	}
	if inst.MinNotional > 0 && qty*refPrice < inst.MinNotional {
		return nil, fmt.Errorf("preflight: notional %.2f below venue minimum %.2f for %s on %s",
			qty*refPrice, inst.MinNotional, coin, a.ID())
	}

	return &Leg{
		Venue:      a.ID(),
		Coin:       coin,
		Symbol:     inst.Symbol,
		Side:       side,
		Qty:        qty,
		LimitPrice: RoundPrice(refPrice, inst.TickSize, side),
		Instrument: inst,
	}, nil
}

// GateContracts converts a base-unit qty into Gate's signed contract count:
// floor(qty / quantoMultiplier), negated for Sell.
func GateContracts(qty float64, inst *venue.Instrument, side Side) (int64, error) {
	mult := inst.QuantoMultiplier
	if mult <= 0 {
		mult = 1
	}
	contracts := int64(math.Floor(qty/mult + 1e-9))
	if contracts <= 0 {
		return 0, fmt.Errorf("qty %.8f is below one contract (multiplier %.8f)", qty, mult)
	}
	if side == Sell {
		contracts = -contracts
	}
	return contracts, nil
}
