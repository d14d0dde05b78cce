package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSymbol(t *testing.T) {
	tests := []struct {
		symbol    string
		wantBase  string
		wantQuote string
		wantErr   bool
	}{
		{"BTCUSDT", "BTC", "USDT", false},
		{"ETHUSDT", "ETH", "USDT", false},
		{"BTCBUSD", "BTC", "BUSD", false},
		{"BTCFDUSD", "BTC", "FDUSD", false},
		{"SOLUSDC", "SOL", "USDC", false},
		{"BTCDAI", "BTC", "DAI", false},
		{"BTCTUSD", "BTC", "TUSD", false},
		// No stable suffix: six characters split 3/3.
		{"ETHBTC", "ETH", "BTC", false},
		{"BNBETH", "BNB", "ETH", false},
		{"XRPEUR", "XRP", "EUR", false},
		// Seven characters split 4/3 when the tail is a known quote.
		{"DOGEBTC", "DOGE", "BTC", false},
		{"AVAXETH", "AVAX", "ETH", false},
		{"LINKBNB", "LINK", "BNB", false},
		// Lowercase input is normalised.
		{"btcusdt", "BTC", "USDT", false},
		// Unsplittable.
		{"XYZ", "", "", true},
		{"ABCDEFGH", "", "", true},
		{"ABCDXYZ", "", "", true},
		{"USDT", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			base, quote, err := SplitSymbol(tt.symbol)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantQuote, quote)
		})
	}
}

func TestIsStable(t *testing.T) {
	for _, q := range []string{"USDT", "BUSD", "USDC", "DAI", "TUSD", "USDP", "FDUSD", "usdt"} {
		assert.True(t, IsStable(q), q)
	}
	for _, q := range []string{"BTC", "ETH", "EUR", ""} {
		assert.False(t, IsStable(q), q)
	}
}

func TestFormatPair(t *testing.T) {
	assert.Equal(t, "BTC/USDT", FormatPair("BTCUSDT"))
	assert.Equal(t, "ETH/BTC", FormatPair("ETHBTC"))
	assert.Equal(t, "DOGE/BTC", FormatPair("DOGEBTC"))
	// Unsplittable symbols render as-is.
	assert.Equal(t, "WEIRD-12", FormatPair("WEIRD-12"))
}
