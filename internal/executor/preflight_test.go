package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/venue"
)

func TestRoundQtyDown(t *testing.T) {
	assert.InDelta(t, 0.003, RoundQtyDown(0.0039, 0.001), 1e-12)
	assert.InDelta(t, 0.003, RoundQtyDown(0.003, 0.001), 1e-12, "exact multiple survives")
	assert.InDelta(t, 0, RoundQtyDown(0.0009, 0.001), 1e-12)
	assert.InDelta(t, 1.5, RoundQtyDown(1.5, 0), 1e-12, "zero step passes through")
}

func TestRoundPriceAggressive(t *testing.T) {
	// Buy rounds up so the order crosses
	assert.InDelta(t, 50000.5, RoundPrice(50000.3, 0.5, Buy), 1e-9)
	// Sell rounds down
	assert.InDelta(t, 50000.0, RoundPrice(50000.3, 0.5, Sell), 1e-9)
	// exact tick is preserved in both directions
	assert.InDelta(t, 50000.5, RoundPrice(50000.5, 0.5, Buy), 1e-9)
	assert.InDelta(t, 50000.5, RoundPrice(50000.5, 0.5, Sell), 1e-9)
	// zero tick passes through
	assert.InDelta(t, 123.456, RoundPrice(123.456, 0, Buy), 1e-9)
}

func TestGateContracts(t *testing.T) {
	inst := &venue.Instrument{QuantoMultiplier: 10}

	n, err := GateContracts(55, inst, Buy)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = GateContracts(55, inst, Sell)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), n)

	_, err = GateContracts(5, inst, Buy)
	assert.Error(t, err, "below one contract")

	// missing multiplier defaults to 1 base unit per contract
	n, err = GateContracts(3, &venue.Instrument{}, Buy)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAlignQty(t *testing.T) {
	long := &Leg{
		Venue:      venue.Bybit,
		Qty:        0.105,
		Instrument: &venue.Instrument{QtyStep: 0.01, MinOrderQty: 0.01},
	}
	short := &Leg{
		Venue:      venue.Gate,
		Qty:        0.13,
		Instrument: &venue.Instrument{QtyStep: 0.05, QuantoMultiplier: 0.05, MinOrderQty: 0.05},
	}
	qty, err := alignQty(long, short)
	require.NoError(t, err)
	// min(0.105, 0.13) = 0.105 -> bybit step 0.01 keeps 0.10 -> gate contract 0.05 keeps 0.10
	assert.InDelta(t, 0.10, qty, 1e-9)

	short.Instrument.MinOrderQty = 1
	_, err = alignQty(long, short)
	assert.Error(t, err, "aligned qty below a venue minimum")
}

func TestFormatStep(t *testing.T) {
	assert.Equal(t, "50000.5", formatStep(50000.5, 0.5))
	assert.Equal(t, "0.003", formatStep(0.003, 0.001))
	assert.Equal(t, "123", formatStep(123, 1))
	// float noise stays out of the payload
	assert.Equal(t, "0.3", formatStep(0.1+0.2, 0.1))
}

func TestStepDecimals(t *testing.T) {
	assert.Equal(t, 0, stepDecimals(1))
	assert.Equal(t, 1, stepDecimals(0.5))
	assert.Equal(t, 3, stepDecimals(0.001))
	assert.Equal(t, 8, stepDecimals(0))
}
