package detect

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
	"whale_watcher/pkg/telemetry"
)

// SideView is the read surface the cumulative detector needs from the
// side-keyed sliding window.
type SideView interface {
	Summary(symbol string, side core.Side) core.WindowSummary
	Duration() time.Duration
}

// CumulativeDetector fires when one side of a symbol accumulates at
// least minOrders trades totalling at least thresholdUsd inside the
// window. Two instances run side by side with different parameters:
// the taker-flow detector and the large-order detector.
type CumulativeDetector struct {
	name         string
	windows      SideView
	thresholdUsd decimal.Decimal
	minOrders    int
	logger       core.ILogger
	now          func() time.Time

	checked   atomic.Uint64
	triggered atomic.Uint64
}

// NewCumulativeDetector wires a detector over its side-keyed window.
// name tags logs and stats so the two instances stay tellable apart.
func NewCumulativeDetector(name string, windows SideView, thresholdUsd float64, minOrders int, logger core.ILogger) *CumulativeDetector {
	if minOrders < 1 {
		minOrders = 1
	}
	return &CumulativeDetector{
		name:         name,
		windows:      windows,
		thresholdUsd: decimal.NewFromFloat(thresholdUsd),
		minOrders:    minOrders,
		logger:       logger.WithField("component", name+"_detector"),
		now:          time.Now,
	}
}

// Check runs after every window update and inspects both sides of the
// symbol. When both cross in the same tick, both events come back;
// suppression downstream decides what survives.
func (d *CumulativeDetector) Check(symbol string) []core.ThresholdEvent {
	d.checked.Add(1)

	var events []core.ThresholdEvent
	for _, side := range []core.Side{core.SideBuy, core.SideSell} {
		sum := d.windows.Summary(symbol, side)
		if sum.Count < d.minOrders {
			continue
		}
		if sum.TotalUsd.LessThan(d.thresholdUsd) {
			continue
		}

		ev := core.ThresholdEvent{
			Kind:           core.KindCumulative,
			Symbol:         symbol,
			Side:           side,
			TotalUsd:       sum.TotalUsd,
			BuyUsd:         decimal.Zero,
			SellUsd:        decimal.Zero,
			TradeCount:     sum.Count,
			WindowDuration: d.windows.Duration(),
			ObservedAt:     d.now(),
		}
		if side == core.SideBuy {
			ev.BuyUsd = sum.TotalUsd
		} else {
			ev.SellUsd = sum.TotalUsd
		}

		d.triggered.Add(1)
		telemetry.GetGlobalMetrics().IncAlertsTriggered(string(core.KindCumulative))
		d.logger.Debug("cumulative threshold crossed",
			"symbol", symbol,
			"side", string(side),
			"total_usd", sum.TotalUsd.StringFixed(0),
			"trades", sum.Count)
		events = append(events, ev)
	}
	return events
}

// Triggered returns the number of events emitted so far.
func (d *CumulativeDetector) Triggered() uint64 {
	return d.triggered.Load()
}

// Name returns the detector's instance tag.
func (d *CumulativeDetector) Name() string {
	return d.name
}
