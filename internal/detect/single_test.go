package detect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"whale_watcher/internal/core"
)

// MockLogger for testing
type MockLogger struct{}

func (m *MockLogger) Debug(msg string, fields ...interface{})               {}
func (m *MockLogger) Info(msg string, fields ...interface{})                {}
func (m *MockLogger) Warn(msg string, fields ...interface{})                {}
func (m *MockLogger) Error(msg string, fields ...interface{})               {}
func (m *MockLogger) Fatal(msg string, fields ...interface{})               {}
func (m *MockLogger) WithField(key string, value interface{}) core.ILogger  { return m }
func (m *MockLogger) WithFields(fields map[string]interface{}) core.ILogger { return m }

func makeTrade(symbol string, side core.Side, qty string, taker bool) core.TradeEvent {
	q, _ := decimal.NewFromString(qty)
	price := decimal.NewFromInt(50_000)
	return core.TradeEvent{
		Exchange:  "binance",
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Quantity:  q,
		Amount:    price.Mul(q),
		TradeTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TradeID:   1,
		IsTaker:   taker,
	}
}

func TestSingleDetector_Check(t *testing.T) {
	det := NewSingleDetector(map[string]float64{"BTCUSDT": 50}, &MockLogger{})
	usd := decimal.NewFromInt(2_500_000)

	tests := []struct {
		name  string
		trade core.TradeEvent
		usd   decimal.Decimal
		want  bool
	}{
		{"above threshold", makeTrade("BTCUSDT", core.SideBuy, "60", true), usd, true},
		{"exactly at threshold", makeTrade("BTCUSDT", core.SideSell, "50", true), usd, true},
		{"below threshold", makeTrade("BTCUSDT", core.SideBuy, "49.999", true), usd, false},
		{"unwatched symbol", makeTrade("DOGEUSDT", core.SideBuy, "1000000", true), usd, false},
		{"maker fill ignored", makeTrade("BTCUSDT", core.SideBuy, "60", false), usd, false},
		{"unknown conversion skipped", makeTrade("BTCUSDT", core.SideBuy, "60", true), decimal.Zero, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := det.Check(tt.trade, tt.usd)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, core.KindSingle, ev.Kind)
				assert.Equal(t, tt.trade.Symbol, ev.Symbol)
				assert.Equal(t, tt.trade.Side, ev.Side)
				assert.True(t, ev.TotalUsd.Equal(tt.usd))
				assert.Equal(t, 1, ev.TradeCount)
			}
		})
	}
}

func TestSingleDetector_SidesCarryUsdBreakdown(t *testing.T) {
	det := NewSingleDetector(map[string]float64{"BTCUSDT": 50}, &MockLogger{})
	usd := decimal.NewFromInt(3_000_000)

	buyEv, ok := det.Check(makeTrade("BTCUSDT", core.SideBuy, "60", true), usd)
	assert.True(t, ok)
	assert.True(t, buyEv.BuyUsd.Equal(usd))
	assert.True(t, buyEv.SellUsd.IsZero())
	assert.True(t, buyEv.TotalUsd.Equal(buyEv.BuyUsd.Add(buyEv.SellUsd)))

	sellEv, ok := det.Check(makeTrade("BTCUSDT", core.SideSell, "60", true), usd)
	assert.True(t, ok)
	assert.True(t, sellEv.SellUsd.Equal(usd))
	assert.True(t, sellEv.BuyUsd.IsZero())
}

func TestSingleDetector_Stats(t *testing.T) {
	det := NewSingleDetector(map[string]float64{"BTCUSDT": 50}, &MockLogger{})
	usd := decimal.NewFromInt(2_500_000)

	det.Check(makeTrade("BTCUSDT", core.SideBuy, "60", true), usd)
	det.Check(makeTrade("BTCUSDT", core.SideBuy, "1", true), usd)

	assert.Equal(t, uint64(2), det.Checked())
	assert.Equal(t, uint64(1), det.Triggered())
	assert.True(t, det.Watches("BTCUSDT"))
	assert.False(t, det.Watches("DOGEUSDT"))
}
