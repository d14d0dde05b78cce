package pricing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
)

// RateCache holds quote->USD rates under a shared TTL. Reads dominate
// writes by orders of magnitude, so lookups take the read lock only.
type RateCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	rates map[string]core.ExchangeRate
	now   func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRateCache creates an empty cache with the given entry lifetime.
func NewRateCache(ttl time.Duration) *RateCache {
	return &RateCache{
		ttl:   ttl,
		rates: make(map[string]core.ExchangeRate),
		now:   time.Now,
	}
}

// Get returns the cached rate for the quote asset when still fresh.
func (c *RateCache) Get(quote string) (decimal.Decimal, bool) {
	c.mu.RLock()
	entry, ok := c.rates[quote]
	c.mu.RUnlock()

	if !ok || !entry.ValidAt(c.now()) {
		c.misses.Add(1)
		return decimal.Zero, false
	}
	c.hits.Add(1)
	return entry.Rate, true
}

// Put stores a freshly fetched rate.
func (c *RateCache) Put(quote string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[quote] = core.ExchangeRate{
		Quote:     quote,
		Rate:      rate,
		FetchedAt: c.now(),
		TTL:       c.ttl,
	}
}

// Sweep drops stale entries and returns how many were removed.
func (c *RateCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for quote, entry := range c.rates {
		if !entry.ValidAt(now) {
			delete(c.rates, quote)
			removed++
		}
	}
	return removed
}

// Size returns the number of entries held, stale ones included.
func (c *RateCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rates)
}

// Stats returns lifetime hit and miss counts.
func (c *RateCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
