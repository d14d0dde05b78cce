package engine

import (
	"context"
	"fmt"
	"time"

	"whale_watcher/internal/aggregate"
	"whale_watcher/internal/archive"
	"whale_watcher/internal/dispatch"
	"whale_watcher/internal/ingest"
	"whale_watcher/internal/recovery"
	"whale_watcher/pkg/telemetry"
)

// Status is a point-in-time snapshot across every component. It backs
// the periodic status log and ad-hoc operator queries.
type Status struct {
	State           string          `json:"state"`
	Uptime          time.Duration   `json:"uptime"`
	UptimePercent   float64         `json:"uptime_percent"`
	TradesProcessed uint64          `json:"trades_processed"`
	ConvertMisses   uint64          `json:"convert_misses"`
	SingleTriggered uint64          `json:"single_triggered"`
	TakerTriggered  uint64          `json:"taker_triggered"`
	LargeTriggered  uint64          `json:"large_order_triggered"`
	TakerSuppressed uint64          `json:"taker_suppressed"`
	LargeSuppressed uint64          `json:"large_order_suppressed"`
	LastAlertAt     time.Time       `json:"last_alert_at"`
	CacheHits       uint64          `json:"cache_hits"`
	CacheMisses     uint64          `json:"cache_misses"`
	WindowMinutes   int             `json:"large_order_window_minutes"`
	Ingest          ingest.Stats    `json:"ingest"`
	Dispatcher      dispatch.Stats  `json:"dispatcher"`
	Recovery        recovery.Status `json:"recovery"`
	Archive         *archive.Stats  `json:"archive,omitempty"`
}

// Status assembles the snapshot from component counters.
func (e *Engine) Status() Status {
	hits, misses := e.cache.Stats()

	st := Status{
		State:           e.ingestor.State().String(),
		UptimePercent:   e.recovery.UptimePercent(),
		TradesProcessed: e.tradesSeen.Load(),
		ConvertMisses:   e.convertMisses.Load(),
		SingleTriggered: e.singleDet.Triggered(),
		TakerTriggered:  e.takerDet.Triggered(),
		LargeTriggered:  e.largeDet.Triggered(),
		TakerSuppressed: e.takerSuppress.Suppressed(),
		LargeSuppressed: e.largeSuppress.Suppressed(),
		CacheHits:       hits,
		CacheMisses:     misses,
		WindowMinutes:   e.windowMgr.CurrentMinutes(),
		Ingest:          e.ingestor.Stats(),
		Dispatcher:      e.dispatcher.Stats(),
		Recovery:        e.recovery.Snapshot(),
	}
	if !e.startedAt.IsZero() {
		st.Uptime = time.Since(e.startedAt)
	}
	if nanos := e.lastAlertUnix.Load(); nanos > 0 {
		st.LastAlertAt = time.Unix(0, nanos)
	}
	if e.archiver != nil {
		s := e.archiver.Stats()
		st.Archive = &s
	}
	return st
}

// registerHealthChecks wires the engine's components into the health
// manager. Checks run on demand, not on a schedule.
func (e *Engine) registerHealthChecks() {
	e.health.Register("ingest", e.ingestor.CheckHealth)

	capacity := e.cfg.Dispatcher.QueueCapacity
	e.health.Register("dispatch_queue", func() error {
		depth := e.dispatcher.QueueDepth()
		if capacity > 0 && depth*10 >= capacity*9 {
			return fmt.Errorf("queue %d/%d", depth, capacity)
		}
		return nil
	})

	e.health.Register("recovery", func() error {
		if e.recovery.Exhausted() {
			return fmt.Errorf("reconnect attempts exhausted")
		}
		return nil
	})

	e.health.Register("pricing", func() error {
		trades := e.tradesSeen.Load()
		misses := e.convertMisses.Load()
		if trades >= 100 && misses*5 >= trades {
			return fmt.Errorf("%d of %d trades unconvertible", misses, trades)
		}
		return nil
	})
}

// maintenanceLoop sweeps expired window entries, cooldowns, cached
// rates and old archive directories. The cadence tracks the current
// large-order window, so a resize takes effect on the next cycle.
func (e *Engine) maintenanceLoop(ctx context.Context) {
	timer := time.NewTimer(aggregate.CleanupInterval(e.largeWindow.Duration()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.runMaintenance()
			timer.Reset(aggregate.CleanupInterval(e.largeWindow.Duration()))
		}
	}
}

func (e *Engine) runMaintenance() {
	evicted := e.largeWindow.Cleanup() + e.takerWindow.Cleanup()
	expired := e.takerRegistry.CleanupExpired() + e.largeRegistry.CleanupExpired()
	swept := e.cache.Sweep()
	removed := 0
	if e.archiver != nil {
		removed = e.archiver.CleanupOld()
	}
	e.logger.Debug("Maintenance sweep",
		"evicted_entries", evicted,
		"expired_cooldowns", expired,
		"swept_rates", swept,
		"removed_archive_dirs", removed)
}

// statusLoop publishes gauges and logs a status line on the configured
// interval.
func (e *Engine) statusLoop(ctx context.Context) {
	interval := e.cfg.System.StatusInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.publishGauges()
			e.logStatus()
		}
	}
}

func (e *Engine) publishGauges() {
	m := telemetry.GetGlobalMetrics()
	m.SetQueueDepth(int64(e.dispatcher.QueueDepth()))
	for symbol, count := range e.largeWindow.Sizes() {
		m.SetWindowEntries(symbol, int64(count))
	}
}

func (e *Engine) logStatus() {
	st := e.Status()
	e.logger.Info("Status",
		"state", st.State,
		"uptime", st.Uptime.Round(time.Second).String(),
		"uptime_pct", st.UptimePercent,
		"trades", st.TradesProcessed,
		"convert_misses", st.ConvertMisses,
		"triggered", st.SingleTriggered+st.TakerTriggered+st.LargeTriggered,
		"suppressed", st.TakerSuppressed+st.LargeSuppressed,
		"dispatched", st.Dispatcher.Dispatched,
		"queue_depth", st.Dispatcher.QueueDepth)

	if failing := e.health.Unhealthy(); len(failing) > 0 {
		e.logger.Warn("Components unhealthy", "failing", failing)
	}
}
