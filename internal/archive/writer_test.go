package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whale_watcher/internal/core"
)

// MockLogger implements core.ILogger for testing
type MockLogger struct{}

func (m *MockLogger) Debug(msg string, fields ...interface{})               {}
func (m *MockLogger) Info(msg string, fields ...interface{})                {}
func (m *MockLogger) Warn(msg string, fields ...interface{})                {}
func (m *MockLogger) Error(msg string, fields ...interface{})               {}
func (m *MockLogger) Fatal(msg string, fields ...interface{})               {}
func (m *MockLogger) WithField(key string, value interface{}) core.ILogger  { return m }
func (m *MockLogger) WithFields(fields map[string]interface{}) core.ILogger { return m }

func testTrade(symbol string, at time.Time) core.TradeEvent {
	return core.TradeEvent{
		Exchange:  "binance",
		Symbol:    symbol,
		Side:      core.SideBuy,
		Price:     decimal.NewFromFloat(65000),
		Quantity:  decimal.NewFromFloat(1.5),
		Amount:    decimal.NewFromFloat(97500),
		TradeTime: at,
		TradeID:   12345,
		IsTaker:   true,
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestWriter_TradeLandsInDailyFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Config{BaseDir: dir}, &MockLogger{})

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w.RecordTrade(testTrade("BTCUSDT", at))
	w.Stop()

	lines := readLines(t, filepath.Join(dir, "2025-03-01", "BTCUSDT.jsonl"))
	require.Len(t, lines, 1)

	var got core.TradeEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, core.SideBuy, got.Side)
	assert.True(t, got.Amount.Equal(decimal.NewFromFloat(97500)))

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Trades)
	assert.Equal(t, uint64(0), stats.Errors)
}

func TestWriter_SameSymbolAppends(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Config{BaseDir: dir}, &MockLogger{})

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		w.RecordTrade(testTrade("ETHUSDT", at.Add(time.Duration(i)*time.Second)))
	}
	w.Stop()

	lines := readLines(t, filepath.Join(dir, "2025-03-01", "ETHUSDT.jsonl"))
	assert.Len(t, lines, 3)
	assert.Equal(t, uint64(3), w.Stats().Trades)
}

func TestWriter_AlertsShareOneFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Config{BaseDir: dir}, &MockLogger{})

	ev := core.ThresholdEvent{
		Kind:       core.KindCumulative,
		Symbol:     "BTCUSDT",
		Side:       core.SideBuy,
		TotalUsd:   decimal.NewFromFloat(2_500_000),
		TradeCount: 7,
		ObservedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	w.RecordAlert(core.Alert{ID: "a-1", Event: ev, RenderedMessage: "first", CreatedAt: ev.ObservedAt})
	w.RecordAlert(core.Alert{ID: "a-2", Event: ev, RenderedMessage: "second", CreatedAt: ev.ObservedAt})
	w.Stop()

	lines := readLines(t, filepath.Join(dir, "alerts", "alerts.jsonl"))
	require.Len(t, lines, 2)

	var rec alertRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "a-2", rec.ID)
	assert.Equal(t, "CUMULATIVE", rec.Kind)
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, "second", rec.Message)
	assert.Equal(t, 7, rec.TradeCount)

	assert.Equal(t, uint64(2), w.Stats().Alerts)
}

func TestWriter_CleanupOldRemovesStaleDays(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2025-01-01", "2025-03-01", "alerts", "notes"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0o755))
	}

	w := NewWriter(Config{BaseDir: dir, RetentionDays: 7}, &MockLogger{})
	w.now = func() time.Time { return time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) }

	removed := w.CleanupOld()
	assert.Equal(t, 1, removed)

	_, err := os.Stat(filepath.Join(dir, "2025-01-01"))
	assert.True(t, os.IsNotExist(err))
	for _, kept := range []string{"2025-03-01", "alerts", "notes"} {
		_, err := os.Stat(filepath.Join(dir, kept))
		assert.NoError(t, err, kept)
	}
}

func TestWriter_CleanupDisabledByZeroRetention(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2020-01-01"), 0o755))

	w := NewWriter(Config{BaseDir: dir, RetentionDays: 0}, &MockLogger{})
	assert.Equal(t, 0, w.CleanupOld())

	_, err := os.Stat(filepath.Join(dir, "2020-01-01"))
	assert.NoError(t, err)
}

func TestWriter_CleanupMissingBaseDir(t *testing.T) {
	w := NewWriter(Config{BaseDir: filepath.Join(t.TempDir(), "absent"), RetentionDays: 7}, &MockLogger{})
	assert.Equal(t, 0, w.CleanupOld())
}
