package venue

import (
	"context"
	"fmt"
	"math"
)

// VWAPForNotional walks a book side from the inside out and computes the
// volume-weighted average price of consuming notional USDT.
// Returns (vwap, notional) when the depth suffices, (0, filledUSD) with
// ok=false when it does not.
func VWAPForNotional(levels []Level, notional float64) (vwap, filledUSD float64, ok bool) {
	if notional <= 0 {
		return 0, 0, true
	}
	remaining := notional
	var filledBase float64
	for _, lv := range levels {
		levelUSD := lv.Price * lv.Size
		take := math.Min(levelUSD, remaining)
		filledUSD += take
		filledBase += take / lv.Price
		remaining -= take
		if remaining <= 1e-9 {
			break
		}
	}
	if filledBase <= 0 {
		return 0, 0, false
	}
	if remaining > 1e-6 {
		return 0, filledUSD, false
	}
	return filledUSD / filledBase, notional, true
}

// CheckLiquidity fetches the coin's orderbook on a and evaluates whether
// notionalUSDT can be entered within the given spread and impact bounds.
// Returns (nil, nil) when the book is unavailable.
func CheckLiquidity(ctx context.Context, a Adapter, coin string, notionalUSDT float64, depth int, maxSpreadBps, maxImpactBps float64, mode LiquidityMode) (*LiquidityReport, error) {
	ob, err := a.Orderbook(ctx, coin, depth)
	if err != nil {
		return nil, err
	}
	if ob == nil || len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return nil, nil
	}
	return EvaluateLiquidity(ob, notionalUSDT, maxSpreadBps, maxImpactBps, mode), nil
}

// EvaluateLiquidity runs the VWAP-for-notional check on an already-fetched
// canonical book. notionalUSDT of zero passes trivially.
func EvaluateLiquidity(ob *OrderBook, notionalUSDT, maxSpreadBps, maxImpactBps float64, mode LiquidityMode) *LiquidityReport {
	bid1 := ob.BestBid()
	ask1 := ob.BestAsk()
	mid := (bid1 + ask1) / 2
	rep := &LiquidityReport{
		Bid1:         bid1,
		Ask1:         ask1,
		Mid:          mid,
		NotionalUSDT: notionalUSDT,
		OK:           true,
	}
	if mid <= 0 {
		rep.OK = false
		rep.Reasons = append(rep.Reasons, "empty book")
		return rep
	}
	rep.SpreadBps = (ask1 - bid1) / mid * 1e4
	if rep.SpreadBps > maxSpreadBps {
		rep.OK = false
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("spread %.1fbps > %.1fbps", rep.SpreadBps, maxSpreadBps))
	}

	needBuy := mode == EntryLong || mode == RoundTrip
	needSell := mode == EntryShort || mode == RoundTrip

	if needBuy {
		vwap, filled, ok := VWAPForNotional(ob.Asks, notionalUSDT)
		if !ok {
			rep.OK = false
			rep.Reasons = append(rep.Reasons, fmt.Sprintf("buy depth %.1f/%.1f USDT", filled, notionalUSDT))
		} else if notionalUSDT > 0 {
			impact := math.Abs(vwap-ask1) / mid * 1e4
			rep.BuyVWAP = &vwap
			rep.BuyImpactBps = &impact
			if impact > maxImpactBps {
				rep.OK = false
				rep.Reasons = append(rep.Reasons, fmt.Sprintf("buy impact %.1fbps > %.1fbps", impact, maxImpactBps))
			}
		}
	}
	if needSell {
		vwap, filled, ok := VWAPForNotional(ob.Bids, notionalUSDT)
		if !ok {
			rep.OK = false
			rep.Reasons = append(rep.Reasons, fmt.Sprintf("sell depth %.1f/%.1f USDT", filled, notionalUSDT))
		} else if notionalUSDT > 0 {
			impact := math.Abs(vwap-bid1) / mid * 1e4
			rep.SellVWAP = &vwap
			rep.SellImpactBps = &impact
			if impact > maxImpactBps {
				rep.OK = false
				rep.Reasons = append(rep.Reasons, fmt.Sprintf("sell impact %.1fbps > %.1fbps", impact, maxImpactBps))
			}
		}
	}
	return rep
}
