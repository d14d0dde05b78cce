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

func TestSideWindow_SidesNeverMix(t *testing.T) {
	w, err := NewSideWindow(time.Minute)
	require.NoError(t, err)

	at := time.Now()
	// Three buys and two sells: neither side reaches five.
	for i := 0; i < 3; i++ {
		w.Add("BTCUSDT", entry(core.SideBuy, 100, at))
	}
	for i := 0; i < 2; i++ {
		w.Add("BTCUSDT", entry(core.SideSell, 100, at))
	}

	buy := w.Summary("BTCUSDT", core.SideBuy)
	sell := w.Summary("BTCUSDT", core.SideSell)
	assert.Equal(t, 3, buy.Count)
	assert.Equal(t, 2, sell.Count)
	assert.True(t, buy.TotalUsd.Equal(decimal.NewFromInt(300)))
	assert.True(t, sell.TotalUsd.Equal(decimal.NewFromInt(200)))
}

func TestSideWindow_EntriesExpire(t *testing.T) {
	w, err := NewSideWindow(time.Minute)
	require.NoError(t, err)
	now := baseTime
	w.now = func() time.Time { return now }

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	assert.Equal(t, 1, w.Summary("BTCUSDT", core.SideBuy).Count)

	now = baseTime.Add(2 * time.Minute)
	assert.Equal(t, 0, w.Summary("BTCUSDT", core.SideBuy).Count)
}

func TestSideWindow_ResetOneSideKeepsOther(t *testing.T) {
	w, err := NewSideWindow(time.Minute)
	require.NoError(t, err)

	at := time.Now()
	w.Add("BTCUSDT", entry(core.SideBuy, 100, at))
	w.Add("BTCUSDT", entry(core.SideSell, 200, at))

	w.Reset("BTCUSDT", core.SideBuy)

	assert.Equal(t, 0, w.Summary("BTCUSDT", core.SideBuy).Count)
	assert.Equal(t, 1, w.Summary("BTCUSDT", core.SideSell).Count)
}

func TestSideWindow_SymbolsIsolated(t *testing.T) {
	w, err := NewSideWindow(time.Minute)
	require.NoError(t, err)

	at := time.Now()
	w.Add("BTCUSDT", entry(core.SideBuy, 100, at))
	w.Add("ETHUSDT", entry(core.SideBuy, 200, at))

	assert.True(t, w.Summary("BTCUSDT", core.SideBuy).TotalUsd.Equal(decimal.NewFromInt(100)))
	assert.True(t, w.Summary("ETHUSDT", core.SideBuy).TotalUsd.Equal(decimal.NewFromInt(200)))
}

func TestSideWindow_CleanupCountsEvictions(t *testing.T) {
	w, err := NewSideWindow(time.Minute)
	require.NoError(t, err)
	now := baseTime
	w.now = func() time.Time { return now }

	w.Add("BTCUSDT", entry(core.SideBuy, 100, baseTime))
	w.Add("BTCUSDT", entry(core.SideSell, 100, baseTime))

	now = baseTime.Add(2 * time.Minute)
	assert.Equal(t, 2, w.Cleanup())
	assert.Empty(t, w.Sizes())
}

func TestSideWindow_SizesSumAcrossSides(t *testing.T) {
	w, err := NewSideWindow(time.Minute)
	require.NoError(t, err)

	at := time.Now()
	w.Add("BTCUSDT", entry(core.SideBuy, 100, at))
	w.Add("BTCUSDT", entry(core.SideSell, 100, at))

	assert.Equal(t, map[string]int{"BTCUSDT": 2}, w.Sizes())
}

func TestSideWindow_ResizeClears(t *testing.T) {
	w, err := NewSideWindow(time.Minute)
	require.NoError(t, err)

	w.Add("BTCUSDT", entry(core.SideBuy, 100, time.Now()))
	require.NoError(t, w.Resize(2*time.Minute))

	assert.Equal(t, 2*time.Minute, w.Duration())
	assert.Equal(t, 0, w.Summary("BTCUSDT", core.SideBuy).Count)
}

func TestSideWindow_InvalidDuration(t *testing.T) {
	_, err := NewSideWindow(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWindow)
}
