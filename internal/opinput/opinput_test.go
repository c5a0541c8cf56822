package opinput

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbscan/internal/venue"
)

func TestParseTrade(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		cmd, err := ParseTrade("ICE Long (mexc), Short (gate)")
		require.NoError(t, err)
		assert.Equal(t, "ICE", cmd.Coin)
		assert.Equal(t, venue.MEXC, cmd.LongVenue)
		assert.Equal(t, venue.Gate, cmd.ShortVenue)
		assert.Zero(t, cmd.NotionalUSDT)
	})

	t.Run("with notional", func(t *testing.T) {
		cmd, err := ParseTrade("btc Long (Bybit), Short (GATE) 150.5")
		require.NoError(t, err)
		assert.Equal(t, "BTC", cmd.Coin)
		assert.Equal(t, venue.Bybit, cmd.LongVenue)
		assert.Equal(t, 150.5, cmd.NotionalUSDT)
	})

	t.Run("scan invest placeholder keeps default", func(t *testing.T) {
		cmd, err := ParseTrade("BTC Long (bybit), Short (gate) SCAN_COIN_INVEST")
		require.NoError(t, err)
		assert.Zero(t, cmd.NotionalUSDT)
	})

	t.Run("loose whitespace", func(t *testing.T) {
		_, err := ParseTrade("  BTC  Long ( bybit ) , Short (gate)  ")
		assert.Error(t, err, "spaces inside parentheses are not part of the grammar")

		cmd, err := ParseTrade("BTC Long(bybit),Short(gate)")
		require.NoError(t, err)
		assert.Equal(t, venue.Bybit, cmd.LongVenue)
	})

	t.Run("rejects", func(t *testing.T) {
		for _, line := range []string{
			"",
			"BTC",
			"BTC Long (bybit)",
			"BTC Long (bybit), Short (bybit)",   // same venue
			"BTC Long (nyse), Short (gate)",     // unknown venue
			"BTC Long (bybit), Short (gate) -5", // negative notional
		} {
			_, err := ParseTrade(line)
			assert.Error(t, err, line)
		}
	})
}

func TestParseConfirmation(t *testing.T) {
	c, err := ParseConfirmation("Да")
	require.NoError(t, err)
	assert.True(t, c.Yes)
	assert.Zero(t, c.ThresholdPct)

	c, err = ParseConfirmation("да, 0.2%")
	require.NoError(t, err)
	assert.True(t, c.Yes)
	assert.Equal(t, 0.2, c.ThresholdPct)

	c, err = ParseConfirmation("Да, 1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.ThresholdPct)

	c, err = ParseConfirmation("Нет")
	require.NoError(t, err)
	assert.False(t, c.Yes)

	_, err = ParseConfirmation("maybe")
	assert.Error(t, err)
}
