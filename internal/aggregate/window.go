// Package aggregate maintains sliding time windows of trade value.
//
// Two layouts exist: Window keys entries by symbol and keeps per-side
// running sums, SideWindow keys by (symbol, side) so that counts for
// one side are never satisfied by the other. Both evict from the head
// only, driven by wall-clock time, so an idle window still expires.
package aggregate

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
)

// bucket is one deque with running aggregates. Entries stay in
// insertion order; out-of-order trade times are appended unchanged
// and age out once they reach the head.
type bucket struct {
	entries   []core.WindowEntry
	buyCount  int
	sellCount int
	buyUsd    decimal.Decimal
	sellUsd   decimal.Decimal
}

func newBucket() *bucket {
	return &bucket{
		buyUsd:  decimal.Zero,
		sellUsd: decimal.Zero,
	}
}

func (b *bucket) add(e core.WindowEntry) {
	b.entries = append(b.entries, e)
	if e.Side == core.SideBuy {
		b.buyCount++
		b.buyUsd = b.buyUsd.Add(e.UsdValue)
	} else {
		b.sellCount++
		b.sellUsd = b.sellUsd.Add(e.UsdValue)
	}
}

func (b *bucket) remove(e core.WindowEntry) {
	if e.Side == core.SideBuy {
		b.buyCount--
		b.buyUsd = b.buyUsd.Sub(e.UsdValue)
	} else {
		b.sellCount--
		b.sellUsd = b.sellUsd.Sub(e.UsdValue)
	}
}

// evict drops head entries strictly older than the cutoff and stops
// at the first survivor. Returns the number dropped.
func (b *bucket) evict(cutoff time.Time) int {
	evicted := 0
	for len(b.entries) > 0 && b.entries[0].TradeTime.Before(cutoff) {
		b.remove(b.entries[0])
		b.entries = b.entries[1:]
		evicted++
	}
	if len(b.entries) == 0 {
		// release the backing array once drained
		b.entries = nil
		b.buyUsd = decimal.Zero
		b.sellUsd = decimal.Zero
	}
	return evicted
}

// removeSide filters out one side in place
func (b *bucket) removeSide(side core.Side) int {
	kept := b.entries[:0]
	removed := 0
	for _, e := range b.entries {
		if e.Side == side {
			b.remove(e)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	if len(b.entries) == 0 {
		b.entries = nil
	}
	return removed
}

func (b *bucket) summary() core.WindowSummary {
	s := core.WindowSummary{
		Count:     b.buyCount + b.sellCount,
		BuyCount:  b.buyCount,
		SellCount: b.sellCount,
		BuyUsd:    b.buyUsd,
		SellUsd:   b.sellUsd,
		TotalUsd:  b.buyUsd.Add(b.sellUsd),
	}
	if len(b.entries) > 0 {
		s.OldestTs = b.entries[0].TradeTime
		s.NewestTs = b.entries[len(b.entries)-1].TradeTime
	}
	return s
}

// Window aggregates trade value per symbol over a sliding duration
type Window struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

// NewWindow creates a symbol-keyed sliding window
func NewWindow(window time.Duration) (*Window, error) {
	if window <= 0 {
		return nil, apperrors.ErrInvalidWindow
	}
	return &Window{
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}, nil
}

// Add appends an entry and evicts expired head entries for the symbol
func (w *Window) Add(symbol string, e core.WindowEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.buckets[symbol]
	if !ok {
		b = newBucket()
		w.buckets[symbol] = b
	}
	b.add(e)
	b.evict(w.now().Add(-w.window))
}

// Summary returns the live aggregates for a symbol. Expired head
// entries are evicted first so an idle symbol reads as empty.
func (w *Window) Summary(symbol string) core.WindowSummary {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.buckets[symbol]
	if !ok {
		return core.WindowSummary{TotalUsd: decimal.Zero, BuyUsd: decimal.Zero, SellUsd: decimal.Zero}
	}
	b.evict(w.now().Add(-w.window))
	return b.summary()
}

// Reset drops all entries of one side for a symbol
func (w *Window) Reset(symbol string, side core.Side) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if b, ok := w.buckets[symbol]; ok {
		b.removeSide(side)
		if len(b.entries) == 0 {
			delete(w.buckets, symbol)
		}
	}
}

// ResetSymbol drops every entry for a symbol
func (w *Window) ResetSymbol(symbol string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.buckets, symbol)
}

// Cleanup sweeps every symbol and returns the number of evicted entries
func (w *Window) Cleanup() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	evicted := 0
	for symbol, b := range w.buckets {
		evicted += b.evict(cutoff)
		if len(b.entries) == 0 {
			delete(w.buckets, symbol)
		}
	}
	return evicted
}

// Resize changes the window duration and clears accumulated entries,
// since entries already evicted under the old duration cannot be
// recovered for a larger one.
func (w *Window) Resize(window time.Duration) error {
	if window <= 0 {
		return apperrors.ErrInvalidWindow
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.window = window
	w.buckets = make(map[string]*bucket)
	return nil
}

// Duration returns the current window duration
func (w *Window) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window
}

// Sizes reports live entry counts per symbol, for gauges
func (w *Window) Sizes() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	sizes := make(map[string]int, len(w.buckets))
	for symbol, b := range w.buckets {
		sizes[symbol] = len(b.entries)
	}
	return sizes
}

// CleanupInterval derives a sweep cadence proportional to the window
// duration, clamped to [1m, 10m]. Larger windows tolerate staler
// idle entries, so they sweep less often.
func CleanupInterval(window time.Duration) time.Duration {
	interval := window / 10
	if interval < time.Minute {
		return time.Minute
	}
	if interval > 10*time.Minute {
		return 10 * time.Minute
	}
	return interval
}
