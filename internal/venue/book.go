package venue

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// SanityClampTicker rewrites bid/ask that disagree with the last price by
// more than 10x in either direction, and enforces bid <= ask by collapsing
// both sides to last when they cross. For very small prices (< 1e-4) only
// the upper bound applies, since a 10x downward move is within noise there.
func SanityClampTicker(t *Ticker) *Ticker {
	if t == nil || t.Price <= 0 {
		return t
	}
	last := t.Price
	clamp := func(v float64) float64 {
		if v <= 0 {
			return last
		}
		if v > last*10 {
			return last
		}
		if last >= 1e-4 && v < last/10 {
			return last
		}
		return v
	}
	t.Bid = clamp(t.Bid)
	t.Ask = clamp(t.Ask)
	if t.Bid > t.Ask {
		t.Bid = last
		t.Ask = last
	}
	return t
}

// RawLevel accepts the level encodings venues actually emit: ["p","s"]
// pairs, [p, s] numeric pairs, and objects keyed by any of the usual
// price/size spellings.
type RawLevel struct {
	Price float64
	Size  float64
	valid bool
}

func (l *RawLevel) UnmarshalJSON(b []byte) error {
	// list form first: ["30000.5","1.2"] or [30000.5, 1.2]
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil {
		if len(arr) < 2 {
			return nil
		}
		p, okP := decodeNumber(arr[0])
		s, okS := decodeNumber(arr[1])
		if okP && okS {
			l.Price, l.Size, l.valid = p, s, true
		}
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	for _, k := range []string{"p", "price"} {
		if raw, ok := obj[k]; ok {
			if v, ok := decodeNumber(raw); ok {
				l.Price = v
			}
		}
	}
	for _, k := range []string{"s", "size", "volume", "quantity", "qty", "v", "amount"} {
		if raw, ok := obj[k]; ok {
			if v, ok := decodeNumber(raw); ok {
				l.Size = v
				break
			}
		}
	}
	l.valid = l.Price != 0
	return nil
}

// NewRawLevel builds an already-decoded level; adapters with typed payloads
// use this instead of the JSON path.
func NewRawLevel(price, size float64) RawLevel {
	return RawLevel{Price: price, Size: size, valid: price != 0}
}

func decodeNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// NormalizeBook converts raw levels into the canonical OrderBook: bids
// descending, asks ascending, non-positive prices dropped, negative sizes
// coerced to absolute, truncated to depth levels per side (0 = no limit).
func NormalizeBook(bids, asks []RawLevel, depth int) *OrderBook {
	ob := &OrderBook{
		Bids: cleanLevels(bids),
		Asks: cleanLevels(asks),
	}
	sort.Slice(ob.Bids, func(i, j int) bool { return ob.Bids[i].Price > ob.Bids[j].Price })
	sort.Slice(ob.Asks, func(i, j int) bool { return ob.Asks[i].Price < ob.Asks[j].Price })
	if depth > 0 {
		if len(ob.Bids) > depth {
			ob.Bids = ob.Bids[:depth]
		}
		if len(ob.Asks) > depth {
			ob.Asks = ob.Asks[:depth]
		}
	}
	return ob
}

func cleanLevels(raw []RawLevel) []Level {
	out := make([]Level, 0, len(raw))
	for _, l := range raw {
		if !l.valid && l.Price == 0 {
			continue
		}
		if l.Price <= 0 {
			continue
		}
		out = append(out, Level{Price: l.Price, Size: math.Abs(l.Size)})
	}
	return out
}
