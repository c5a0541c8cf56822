package news

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMentionsCoin(t *testing.T) {
	tests := []struct {
		name string
		text string
		coin string
		want bool
	}{
		{"plain mention", "Notice on BTC perpetual contract", "BTC", true},
		{"pair form", "BTCUSDT will be adjusted", "BTC", true},
		{"slash pair", "Delisting of BTC/USDT", "BTC", true},
		{"case insensitive", "btc update", "btc", true},
		{"embedded prefix", "SBTC2 token swap", "BTC", false},
		{"embedded suffix", "BTCB bridge", "BTC", false},
		{"digit boundary", "2BTC promo", "BTC", false},
		{"punctuation boundary", "(BTC)", "BTC", true},
		{"second occurrence matches", "WBTC and BTC are different", "BTC", true},
		{"empty coin", "anything", "", false},
		{"no mention", "ETH only", "BTC", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MentionsCoin(tt.text, tt.coin))
		})
	}
}

func TestDelistingKeywords(t *testing.T) {
	assert.True(t, HasDelistingKeyword("Bybit will delist the ABCUSDT perpetual"))
	assert.True(t, HasDelistingKeyword("Уведомление о делистинге пары"))
	assert.True(t, HasDelistingKeyword("Notice of Removal of Selected Contracts"))
	// soft suspension wording is not a delisting signal
	assert.False(t, HasDelistingKeyword("Trading will be suspended for maintenance"))
	assert.False(t, HasDelistingKeyword("Deposits halted temporarily"))
}

func TestSecurityKeywords(t *testing.T) {
	assert.True(t, HasSecurityKeyword("Project X was exploited for $2M"))
	assert.True(t, HasSecurityKeyword("Обнаружен взлом протокола"))
	assert.False(t, HasSecurityKeyword("New listing announcement"))
}

func TestHasDelistingTag(t *testing.T) {
	assert.True(t, HasDelistingTag([]string{"Spot", "SYMBOL_DELISTING"}))
	assert.True(t, HasDelistingTag([]string{" symbol_delisting "}))
	assert.False(t, HasDelistingTag([]string{"Listing"}))
	assert.False(t, HasDelistingTag(nil))
}
