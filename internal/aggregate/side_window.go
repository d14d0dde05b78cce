package aggregate

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
)

type sideKey struct {
	symbol string
	side   core.Side
}

// SideWindow aggregates trade value per (symbol, side) over a sliding
// duration. Opposite sides live in separate deques so a per-side
// order count is never satisfied by mixed flow.
type SideWindow struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[sideKey]*bucket
	now     func() time.Time
}

// NewSideWindow creates a (symbol, side)-keyed sliding window
func NewSideWindow(window time.Duration) (*SideWindow, error) {
	if window <= 0 {
		return nil, apperrors.ErrInvalidWindow
	}
	return &SideWindow{
		window:  window,
		buckets: make(map[sideKey]*bucket),
		now:     time.Now,
	}, nil
}

// Add appends an entry to its side's deque and evicts expired heads
func (w *SideWindow) Add(symbol string, e core.WindowEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := sideKey{symbol: symbol, side: e.Side}
	b, ok := w.buckets[key]
	if !ok {
		b = newBucket()
		w.buckets[key] = b
	}
	b.add(e)
	b.evict(w.now().Add(-w.window))
}

// Summary returns the live aggregates for one (symbol, side). The
// opposite side's fields are zero.
func (w *SideWindow) Summary(symbol string, side core.Side) core.WindowSummary {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.buckets[sideKey{symbol: symbol, side: side}]
	if !ok {
		return core.WindowSummary{TotalUsd: decimal.Zero, BuyUsd: decimal.Zero, SellUsd: decimal.Zero}
	}
	b.evict(w.now().Add(-w.window))
	return b.summary()
}

// Reset clears the deque for one (symbol, side)
func (w *SideWindow) Reset(symbol string, side core.Side) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.buckets, sideKey{symbol: symbol, side: side})
}

// Cleanup sweeps every deque and returns the number of evicted entries
func (w *SideWindow) Cleanup() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	evicted := 0
	for key, b := range w.buckets {
		evicted += b.evict(cutoff)
		if len(b.entries) == 0 {
			delete(w.buckets, key)
		}
	}
	return evicted
}

// Resize changes the window duration and clears accumulated entries
func (w *SideWindow) Resize(window time.Duration) error {
	if window <= 0 {
		return apperrors.ErrInvalidWindow
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.window = window
	w.buckets = make(map[sideKey]*bucket)
	return nil
}

// Duration returns the current window duration
func (w *SideWindow) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window
}

// Sizes reports live entry counts per symbol, summed across sides
func (w *SideWindow) Sizes() map[string]int {
	w.mu.Lock()
	defer w.mu.Unlock()

	sizes := make(map[string]int, len(w.buckets))
	for key, b := range w.buckets {
		sizes[key.symbol] += len(b.entries)
	}
	return sizes
}
