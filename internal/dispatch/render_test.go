package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"whale_watcher/internal/core"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0"},
		{"999", "$999"},
		{"1000", "$1,000"},
		{"2000000", "$2,000,000"},
		{"2500000.75", "$2,500,001"},
		{"123456789", "$123,456,789"},
		{"1000000.2", "$1,000,000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUSD(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestRenderer_Single(t *testing.T) {
	r := NewRenderer("binance")
	ev := core.ThresholdEvent{
		Kind:       core.KindSingle,
		Symbol:     "BTCUSDT",
		Side:       core.SideBuy,
		TotalUsd:   decimal.NewFromInt(2_500_000),
		BuyUsd:     decimal.NewFromInt(2_500_000),
		SellUsd:    decimal.Zero,
		TradeCount: 1,
		ObservedAt: time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC),
	}

	msg := r.Render(ev)
	assert.Contains(t, msg, "Large BUY on binance")
	assert.Contains(t, msg, "BTC/USDT")
	assert.Contains(t, msg, "$2,500,000")
	assert.Contains(t, msg, "12:30:15 UTC")
	assert.Contains(t, msg, "⬆️")
}

func TestRenderer_Cumulative(t *testing.T) {
	r := NewRenderer("binance")
	ev := core.ThresholdEvent{
		Kind:           core.KindCumulative,
		Symbol:         "ETHUSDT",
		Side:           core.SideSell,
		TotalUsd:       decimal.NewFromInt(2_000_000),
		BuyUsd:         decimal.Zero,
		SellUsd:        decimal.NewFromInt(2_000_000),
		TradeCount:     2,
		WindowDuration: 5 * time.Minute,
		ObservedAt:     time.Date(2025, 6, 1, 12, 31, 45, 0, time.UTC),
	}

	msg := r.Render(ev)
	assert.Contains(t, msg, "Cumulative SELL pressure on binance")
	assert.Contains(t, msg, "ETH/USDT")
	assert.Contains(t, msg, "$2,000,000 across 2 trades in 5m")
	assert.Contains(t, msg, "Buy $0")
	assert.Contains(t, msg, "Sell $2,000,000")
	assert.Contains(t, msg, "⬇️")
}

func TestRenderer_WindowFormats(t *testing.T) {
	assert.Equal(t, "60s", formatWindow(60*time.Second+500*time.Millisecond))
	assert.Equal(t, "1m", formatWindow(time.Minute))
	assert.Equal(t, "5m", formatWindow(5*time.Minute))
	assert.Equal(t, "45s", formatWindow(45*time.Second))
	assert.Equal(t, "90s", formatWindow(90*time.Second))
}

func TestRenderer_AdminKindRendersEmpty(t *testing.T) {
	r := NewRenderer("binance")
	assert.Equal(t, "", r.Render(core.ThresholdEvent{Kind: core.KindAdmin}))
}

func TestRenderer_UnsplittableSymbolFallsBack(t *testing.T) {
	r := NewRenderer("binance")
	ev := core.ThresholdEvent{
		Kind:       core.KindSingle,
		Symbol:     "ODDPAIR99",
		Side:       core.SideSell,
		TotalUsd:   decimal.NewFromInt(1_000_000),
		SellUsd:    decimal.NewFromInt(1_000_000),
		BuyUsd:     decimal.Zero,
		TradeCount: 1,
		ObservedAt: time.Now(),
	}
	msg := r.Render(ev)
	assert.True(t, strings.Contains(msg, "ODDPAIR99"))
}
