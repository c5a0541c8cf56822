package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEpochMS(t *testing.T) {
	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"zero", 0, 0},
		{"negative", -5, 0},
		{"too small", 12345, 0},
		{"seconds", 1_700_000_000, 1_700_000_000_000},
		{"milliseconds", 1_700_000_000_000, 1_700_000_000_000},
		{"nanoseconds", 1_700_000_000_000_000_000, 1_700_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeEpochMS(tt.in))
		})
	}
}

func TestMinutesUntilFunding(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	m, ok := MinutesUntilFunding(0, now)
	assert.False(t, ok)
	assert.Equal(t, 0, m)

	// 90 minutes out, given in seconds
	m, ok = MinutesUntilFunding(now.Unix()+90*60, now)
	assert.True(t, ok)
	assert.Equal(t, 90, m)

	// same point in milliseconds
	m, ok = MinutesUntilFunding(now.UnixMilli()+90*60*1000, now)
	assert.True(t, ok)
	assert.Equal(t, 90, m)

	// past payout is not a candidate, never negative
	_, ok = MinutesUntilFunding(now.Unix()-60, now)
	assert.False(t, ok)

	// sub-minute durations truncate to zero but remain valid
	m, ok = MinutesUntilFunding(now.Unix()+30, now)
	assert.True(t, ok)
	assert.Equal(t, 0, m)
}

func TestSanityClampTicker(t *testing.T) {
	t.Run("upward outlier clamps to last", func(t *testing.T) {
		tk := SanityClampTicker(&Ticker{Price: 100, Bid: 99, Ask: 2000})
		assert.Equal(t, 99.0, tk.Bid)
		assert.Equal(t, 100.0, tk.Ask)
	})

	t.Run("downward outlier clamps when price is not tiny", func(t *testing.T) {
		tk := SanityClampTicker(&Ticker{Price: 100, Bid: 5, Ask: 101})
		assert.Equal(t, 100.0, tk.Bid)
		assert.Equal(t, 101.0, tk.Ask)
	})

	t.Run("tiny prices keep low bids", func(t *testing.T) {
		tk := SanityClampTicker(&Ticker{Price: 5e-5, Bid: 4e-6, Ask: 6e-5})
		assert.Equal(t, 4e-6, tk.Bid)
	})

	t.Run("crossed book collapses to last", func(t *testing.T) {
		tk := SanityClampTicker(&Ticker{Price: 100, Bid: 102, Ask: 98})
		assert.Equal(t, 100.0, tk.Bid)
		assert.Equal(t, 100.0, tk.Ask)
	})

	t.Run("no last price leaves the quote alone", func(t *testing.T) {
		tk := SanityClampTicker(&Ticker{Bid: 99, Ask: 101})
		assert.Equal(t, 99.0, tk.Bid)
		assert.Equal(t, 101.0, tk.Ask)
	})
}

func TestNormalizeBook(t *testing.T) {
	bids := []RawLevel{
		NewRawLevel(99, 1),
		NewRawLevel(101, 2),
		NewRawLevel(-5, 3),
		NewRawLevel(100, -4),
	}
	asks := []RawLevel{
		NewRawLevel(105, 1),
		NewRawLevel(103, 2),
		NewRawLevel(0, 9),
	}
	ob := NormalizeBook(bids, asks, 2)

	assert.Len(t, ob.Bids, 2)
	assert.Equal(t, 101.0, ob.Bids[0].Price)
	assert.Equal(t, 100.0, ob.Bids[1].Price)
	assert.Equal(t, 4.0, ob.Bids[1].Size, "negative sizes are coerced to absolute")

	assert.Len(t, ob.Asks, 2)
	assert.Equal(t, 103.0, ob.Asks[0].Price)
	assert.Equal(t, 105.0, ob.Asks[1].Price)

	assert.Equal(t, 101.0, ob.BestBid())
	assert.Equal(t, 103.0, ob.BestAsk())
}

func TestRawLevelUnmarshal(t *testing.T) {
	var l RawLevel
	assert.NoError(t, l.UnmarshalJSON([]byte(`["30000.5","1.2"]`)))
	assert.Equal(t, 30000.5, l.Price)
	assert.Equal(t, 1.2, l.Size)

	var n RawLevel
	assert.NoError(t, n.UnmarshalJSON([]byte(`[30000.5, 1.2]`)))
	assert.Equal(t, 30000.5, n.Price)

	var o RawLevel
	assert.NoError(t, o.UnmarshalJSON([]byte(`{"price":"42.5","volume":"7"}`)))
	assert.Equal(t, 42.5, o.Price)
	assert.Equal(t, 7.0, o.Size)
}
