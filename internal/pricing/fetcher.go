package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"whale_watcher/internal/core"
)

// RateFetcher resolves a quote asset into its USD rate.
type RateFetcher interface {
	FetchRate(ctx context.Context, quote string) (decimal.Decimal, error)
}

// BinanceFetcher prices quote assets against their USDT book via the
// venue's REST ticker. A token bucket caps request bursts when many
// symbols miss the cache at once.
type BinanceFetcher struct {
	client  *binance.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  core.ILogger
}

// NewBinanceFetcher builds a fetcher against the given REST base URL.
// An empty URL keeps the library default.
func NewBinanceFetcher(restURL string, logger core.ILogger) *BinanceFetcher {
	client := binance.NewClient("", "")
	if restURL != "" {
		client.BaseURL = restURL
	}
	return &BinanceFetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 4),
		timeout: 5 * time.Second,
		logger:  logger.WithField("component", "rate_fetcher"),
	}
}

// FetchRate returns the quote->USD rate. Stable quotes short-circuit to
// 1 so callers need not special-case them.
func (f *BinanceFetcher) FetchRate(ctx context.Context, quote string) (decimal.Decimal, error) {
	if IsStable(quote) {
		return decimal.NewFromInt(1), nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate fetch for %s throttled: %w", quote, err)
	}

	symbol := quote + "USDT"
	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("ticker price %s: empty response", symbol)
	}

	parsed, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker price %s: bad price %q: %w", symbol, prices[0].Price, err)
	}
	if !parsed.IsPositive() {
		return decimal.Zero, fmt.Errorf("ticker price %s: non-positive price %s", symbol, parsed)
	}

	f.logger.Debug("fetched quote rate", "quote", quote, "rate", parsed.String())
	return parsed, nil
}
