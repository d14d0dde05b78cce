package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(side core.Side, usd float64, at time.Time) core.WindowEntry {
	return core.WindowEntry{TradeTime: at, UsdValue: decimal.NewFromFloat(usd), Side: side}
}

// fixedClock pins a window's notion of now.
func fixedClock(w *Window, at time.Time) *time.Time {
	t := at
	w.now = func() time.Time { return t }
	return &t
}

func TestWindow_RunningSumsPerSide(t *testing.T) {
	w, err := NewWindow(5 * time.Minute)
	require.NoError(t, err)
	fixedClock(w, baseTime)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	w.Add("BTCUSDT", entry(core.SideBuy, 250, baseTime.Add(time.Second)))
	w.Add("BTCUSDT", entry(core.SideSell, 400, baseTime.Add(2*time.Second)))

	sum := w.Summary("BTCUSDT")
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, 2, sum.BuyCount)
	assert.Equal(t, 1, sum.SellCount)
	assert.True(t, sum.BuyUsd.Equal(decimal.NewFromInt(350)))
	assert.True(t, sum.SellUsd.Equal(decimal.NewFromInt(400)))
	assert.True(t, sum.TotalUsd.Equal(sum.BuyUsd.Add(sum.SellUsd)))
	assert.Equal(t, baseTime, sum.OldestTs)
	assert.Equal(t, baseTime.Add(2*time.Second), sum.NewestTs)
}

func TestWindow_EntriesExpireByWallClock(t *testing.T) {
	w, err := NewWindow(time.Minute)
	require.NoError(t, err)
	now := fixedClock(w, baseTime)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))

	// Still inside the window.
	*now = baseTime.Add(59 * time.Second)
	assert.Equal(t, 1, w.Summary("BTCUSDT").Count)

	// Idle symbol expires on read even with no new trades.
	*now = baseTime.Add(61 * time.Second)
	sum := w.Summary("BTCUSDT")
	assert.Equal(t, 0, sum.Count)
	assert.True(t, sum.TotalUsd.IsZero())
}

func TestWindow_OutOfOrderWithinWindowCounts(t *testing.T) {
	w, err := NewWindow(5 * time.Minute)
	require.NoError(t, err)
	fixedClock(w, baseTime)

	// Venue timestamps can arrive out of order; both count as long as
	// they fall inside the window.
	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	w.Add("BTCUSDT", entry(core.SideBuy, 200, baseTime.Add(-30*time.Second)))

	sum := w.Summary("BTCUSDT")
	assert.Equal(t, 2, sum.Count)
	assert.True(t, sum.BuyUsd.Equal(decimal.NewFromInt(300)))
}

func TestWindow_ResetClearsOneSideOnly(t *testing.T) {
	w, err := NewWindow(5 * time.Minute)
	require.NoError(t, err)
	fixedClock(w, baseTime)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	w.Add("BTCUSDT", entry(core.SideSell, 200, baseTime))

	w.Reset("BTCUSDT", core.SideBuy)

	sum := w.Summary("BTCUSDT")
	assert.Equal(t, 0, sum.BuyCount)
	assert.True(t, sum.BuyUsd.IsZero())
	assert.Equal(t, 1, sum.SellCount)
	assert.True(t, sum.SellUsd.Equal(decimal.NewFromInt(200)))
}

func TestWindow_ResetSymbolDropsEverything(t *testing.T) {
	w, err := NewWindow(5 * time.Minute)
	require.NoError(t, err)
	fixedClock(w, baseTime)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	w.Add("ETHUSDT", entry(core.SideSell, 200, baseTime))

	w.ResetSymbol("BTCUSDT")

	assert.Equal(t, 0, w.Summary("BTCUSDT").Count)
	assert.Equal(t, 1, w.Summary("ETHUSDT").Count)
}

func TestWindow_CleanupSweepsIdleSymbols(t *testing.T) {
	w, err := NewWindow(time.Minute)
	require.NoError(t, err)
	now := fixedClock(w, baseTime)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	w.Add("ETHUSDT", entry(core.SideSell, 200, baseTime))

	*now = baseTime.Add(2 * time.Minute)
	assert.Equal(t, 2, w.Cleanup())
	assert.Empty(t, w.Sizes())
}

func TestWindow_ResizeClearsEntries(t *testing.T) {
	w, err := NewWindow(5 * time.Minute)
	require.NoError(t, err)
	fixedClock(w, baseTime)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	require.NoError(t, w.Resize(15*time.Minute))

	assert.Equal(t, 15*time.Minute, w.Duration())
	assert.Equal(t, 0, w.Summary("BTCUSDT").Count)

	assert.ErrorIs(t, w.Resize(0), apperrors.ErrInvalidWindow)
}

func TestWindow_InvalidDuration(t *testing.T) {
	_, err := NewWindow(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWindow)

	_, err = NewWindow(-time.Minute)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWindow)
}

func TestWindow_UnknownSymbolIsEmpty(t *testing.T) {
	w, err := NewWindow(time.Minute)
	require.NoError(t, err)

	sum := w.Summary("NOPEUSDT")
	assert.Equal(t, 0, sum.Count)
	assert.True(t, sum.TotalUsd.IsZero())
	assert.True(t, sum.OldestTs.IsZero())
}

func TestWindow_SizesReportLiveCounts(t *testing.T) {
	w, err := NewWindow(5 * time.Minute)
	require.NoError(t, err)
	fixedClock(w, baseTime)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	w.Add("BTCUSDT", entry(core.SideSell, 100, baseTime))
	w.Add("ETHUSDT", entry(core.SideBuy, 100, baseTime))

	assert.Equal(t, map[string]int{"BTCUSDT": 2, "ETHUSDT": 1}, w.Sizes())
}

func TestCleanupInterval_TracksWindowClamped(t *testing.T) {
	assert.Equal(t, time.Minute, CleanupInterval(time.Minute))
	assert.Equal(t, time.Minute, CleanupInterval(5*time.Minute))
	assert.Equal(t, 3*time.Minute, CleanupInterval(30*time.Minute))
	assert.Equal(t, 10*time.Minute, CleanupInterval(100*time.Minute))
	assert.Equal(t, 10*time.Minute, CleanupInterval(24*time.Hour))
}
