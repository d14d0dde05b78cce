// Package pricing normalises trade notionals into USD. Stable-quoted
// symbols convert arithmetically; everything else goes through a cached
// quote->USD rate fetched from the venue's REST API.
package pricing

import (
	"fmt"
	"strings"

	apperrors "whale_watcher/pkg/errors"
)

// stableQuotes are treated as 1:1 with USD. Ordered longest-first so
// suffix matching picks FDUSD over USD-something truncations.
var stableQuotes = []string{"FDUSD", "USDT", "BUSD", "USDC", "TUSD", "USDP", "DAI"}

var stableSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(stableQuotes))
	for _, q := range stableQuotes {
		set[q] = struct{}{}
	}
	return set
}()

// knownQuotes3 are the three-letter quote assets accepted when a
// seven-character symbol has no stable suffix.
var knownQuotes3 = map[string]struct{}{
	"BTC": {},
	"ETH": {},
	"BNB": {},
	"USD": {},
	"EUR": {},
	"GBP": {},
	"TRY": {},
}

// IsStable reports whether the asset pegs to USD.
func IsStable(asset string) bool {
	_, ok := stableSet[strings.ToUpper(asset)]
	return ok
}

// SplitSymbol resolves a venue symbol into base and quote assets.
// Stable suffixes win; otherwise six-character symbols split 3/3 and
// seven-character symbols split 4/3 when the tail is a known quote.
func SplitSymbol(symbol string) (base, quote string, err error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	for _, q := range stableQuotes {
		if strings.HasSuffix(sym, q) && len(sym) > len(q) {
			return sym[:len(sym)-len(q)], q, nil
		}
	}

	switch len(sym) {
	case 6:
		return sym[:3], sym[3:], nil
	case 7:
		tail := sym[4:]
		if _, ok := knownQuotes3[tail]; ok {
			return sym[:4], tail, nil
		}
	}

	return "", "", fmt.Errorf("%w: cannot split %q into base/quote", apperrors.ErrInvalidSymbol, symbol)
}

// FormatPair renders a venue symbol as BASE/QUOTE for messages,
// falling back to the raw symbol when it cannot be split.
func FormatPair(symbol string) string {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return symbol
	}
	return base + "/" + quote
}
