// Package detect holds the threshold detectors. Detectors are pure
// checks over trades and window summaries; suppression and delivery
// live downstream.
package detect

import (
	"sync/atomic"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
	"whale_watcher/pkg/telemetry"
)

// SingleDetector flags individual taker trades whose base quantity
// meets a per-symbol threshold. Symbols without a configured threshold
// are never flagged.
type SingleDetector struct {
	thresholds map[string]decimal.Decimal
	logger     core.ILogger

	checked   atomic.Uint64
	triggered atomic.Uint64
}

// NewSingleDetector builds a detector from per-symbol quantity
// thresholds expressed in the base asset.
func NewSingleDetector(thresholds map[string]float64, logger core.ILogger) *SingleDetector {
	converted := make(map[string]decimal.Decimal, len(thresholds))
	for sym, qty := range thresholds {
		converted[sym] = decimal.NewFromFloat(qty)
	}
	return &SingleDetector{
		thresholds: converted,
		logger:     logger.WithField("component", "single_detector"),
	}
}

// Check inspects one trade. usd is the normalised notional; a zero
// value means the conversion failed and the trade is skipped. Meeting
// the threshold exactly triggers.
func (d *SingleDetector) Check(trade core.TradeEvent, usd decimal.Decimal) (core.ThresholdEvent, bool) {
	d.checked.Add(1)

	if !trade.IsTaker {
		return core.ThresholdEvent{}, false
	}
	threshold, ok := d.thresholds[trade.Symbol]
	if !ok {
		return core.ThresholdEvent{}, false
	}
	if !usd.IsPositive() {
		return core.ThresholdEvent{}, false
	}
	if trade.Quantity.LessThan(threshold) {
		return core.ThresholdEvent{}, false
	}

	ev := core.ThresholdEvent{
		Kind:       core.KindSingle,
		Symbol:     trade.Symbol,
		Side:       trade.Side,
		TotalUsd:   usd,
		BuyUsd:     decimal.Zero,
		SellUsd:    decimal.Zero,
		TradeCount: 1,
		ObservedAt: trade.TradeTime,
	}
	if trade.Side == core.SideBuy {
		ev.BuyUsd = usd
	} else {
		ev.SellUsd = usd
	}

	d.triggered.Add(1)
	telemetry.GetGlobalMetrics().IncAlertsTriggered(string(core.KindSingle))
	d.logger.Debug("single threshold crossed",
		"symbol", trade.Symbol,
		"side", string(trade.Side),
		"quantity", trade.Quantity.String(),
		"usd", usd.StringFixed(0))
	return ev, true
}

// Watches reports whether the symbol carries a single-trade threshold.
func (d *SingleDetector) Watches(symbol string) bool {
	_, ok := d.thresholds[symbol]
	return ok
}

// Triggered returns the number of events emitted so far.
func (d *SingleDetector) Triggered() uint64 {
	return d.triggered.Load()
}

// Checked returns the number of trades inspected so far.
func (d *SingleDetector) Checked() uint64 {
	return d.checked.Load()
}
