package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"whale_watcher/internal/core"
	"whale_watcher/pkg/telemetry"
)

// ErrorRecorder receives conversion failures for the operational
// ledger. The recovery manager implements it.
type ErrorRecorder interface {
	RecordError(component, message string, severity core.ErrorSeverity)
}

const refreshTimeout = 5 * time.Second

// Converter implements core.IPriceConverter. Stable-quoted symbols
// convert without any lookup. Other quotes use the rate cache; a miss
// returns the zero sentinel immediately and refreshes in the
// background, keeping network waits off the receive loop.
type Converter struct {
	cache    *RateCache
	fetcher  RateFetcher
	recorder ErrorRecorder
	logger   core.ILogger
	group    singleflight.Group
}

// NewConverter wires the cache and fetcher together. recorder may be
// nil.
func NewConverter(cache *RateCache, fetcher RateFetcher, recorder ErrorRecorder, logger core.ILogger) *Converter {
	return &Converter{
		cache:    cache,
		fetcher:  fetcher,
		recorder: recorder,
		logger:   logger.WithField("component", "price_converter"),
	}
}

// ToUSD returns the USD value of price*quantity, or decimal.Zero when
// the rate is unknown right now. Zero values never aggregate.
func (c *Converter) ToUSD(ctx context.Context, symbol string, price, quantity decimal.Decimal) decimal.Decimal {
	_, quote, err := SplitSymbol(symbol)
	if err != nil {
		telemetry.GetGlobalMetrics().IncConvertFailures(symbol)
		c.logger.Debug("unparseable symbol", "symbol", symbol, "error", err.Error())
		return decimal.Zero
	}

	notional := price.Mul(quantity)
	if IsStable(quote) {
		return notional
	}

	if rateVal, ok := c.cache.Get(quote); ok {
		return notional.Mul(rateVal)
	}

	// Unknown right now. The refresh runs detached so the receive loop
	// never waits on the network.
	c.refreshAsync(quote)
	telemetry.GetGlobalMetrics().IncConvertFailures(symbol)
	c.logger.Debug("rate not cached, conversion deferred", "symbol", symbol, "quote", quote)
	return decimal.Zero
}

// ToUSDBatch converts a batch, isolating failures to their own entry.
func (c *Converter) ToUSDBatch(ctx context.Context, trades []core.TradeEvent) []decimal.Decimal {
	values := make([]decimal.Decimal, len(trades))
	for i, t := range trades {
		values[i] = c.ToUSD(ctx, t.Symbol, t.Price, t.Quantity)
	}
	return values
}

// Warm fetches rates for every non-stable quote among the symbols so
// the hot path starts with a populated cache. Individual failures are
// logged and skipped.
func (c *Converter) Warm(ctx context.Context, symbols []string) {
	seen := make(map[string]struct{})
	for _, sym := range symbols {
		_, quote, err := SplitSymbol(sym)
		if err != nil || IsStable(quote) {
			continue
		}
		if _, dup := seen[quote]; dup {
			continue
		}
		seen[quote] = struct{}{}

		if _, ok := c.cache.Get(quote); ok {
			continue
		}
		if err := c.refresh(ctx, quote); err != nil {
			c.logger.Warn("rate warmup failed", "quote", quote, "error", err.Error())
		}
	}
}

// refreshAsync fetches the quote's rate once no matter how many misses
// pile up concurrently.
func (c *Converter) refreshAsync(quote string) {
	go func() {
		_, _, _ = c.group.Do(quote, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			return nil, c.refresh(ctx, quote)
		})
	}()
}

func (c *Converter) refresh(ctx context.Context, quote string) error {
	rateVal, err := c.fetcher.FetchRate(ctx, quote)
	telemetry.GetGlobalMetrics().IncRateFetches(quote, err == nil)
	if err != nil {
		if c.recorder != nil {
			c.recorder.RecordError("price_converter",
				fmt.Sprintf("rate fetch for %s failed: %v", quote, err),
				core.SeverityMedium)
		}
		return err
	}
	c.cache.Put(quote, rateVal)
	return nil
}
