package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricTradesReceivedTotal   = "whale_watcher_trades_received_total"
	MetricParseErrorsTotal      = "whale_watcher_parse_errors_total"
	MetricConvertFailuresTotal  = "whale_watcher_convert_failures_total"
	MetricRateFetchesTotal      = "whale_watcher_rate_fetches_total"
	MetricAlertsTriggeredTotal  = "whale_watcher_alerts_triggered_total"
	MetricAlertsSuppressedTotal = "whale_watcher_alerts_suppressed_total"
	MetricAlertsDispatchedTotal = "whale_watcher_alerts_dispatched_total"
	MetricAlertsDroppedTotal    = "whale_watcher_alerts_dropped_total"
	MetricSinkErrorsTotal       = "whale_watcher_sink_errors_total"
	MetricReconnectsTotal       = "whale_watcher_reconnects_total"
	MetricDispatchLatency       = "whale_watcher_dispatch_latency_ms"
	MetricQueueDepth            = "whale_watcher_queue_depth"
	MetricWindowEntries         = "whale_watcher_window_entries"
	MetricConnectionState       = "whale_watcher_connection_state"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	TradesReceivedTotal   metric.Int64Counter
	ParseErrorsTotal      metric.Int64Counter
	ConvertFailuresTotal  metric.Int64Counter
	RateFetchesTotal      metric.Int64Counter
	AlertsTriggeredTotal  metric.Int64Counter
	AlertsSuppressedTotal metric.Int64Counter
	AlertsDispatchedTotal metric.Int64Counter
	AlertsDroppedTotal    metric.Int64Counter
	SinkErrorsTotal       metric.Int64Counter
	ReconnectsTotal       metric.Int64Counter
	DispatchLatency       metric.Float64Histogram
	QueueDepth            metric.Int64ObservableGauge
	WindowEntries         metric.Int64ObservableGauge
	ConnectionState       metric.Int64ObservableGauge

	// State for observable gauges
	mu               sync.RWMutex
	queueDepth       int64
	windowEntriesMap map[string]int64
	connectionState  int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			windowEntriesMap: make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.TradesReceivedTotal, err = meter.Int64Counter(MetricTradesReceivedTotal, metric.WithDescription("Total trades received from the venue stream"))
	if err != nil {
		return err
	}

	m.ParseErrorsTotal, err = meter.Int64Counter(MetricParseErrorsTotal, metric.WithDescription("Total malformed frames dropped"))
	if err != nil {
		return err
	}

	m.ConvertFailuresTotal, err = meter.Int64Counter(MetricConvertFailuresTotal, metric.WithDescription("Total USD conversions that returned the zero sentinel"))
	if err != nil {
		return err
	}

	m.RateFetchesTotal, err = meter.Int64Counter(MetricRateFetchesTotal, metric.WithDescription("Total REST rate fetches"))
	if err != nil {
		return err
	}

	m.AlertsTriggeredTotal, err = meter.Int64Counter(MetricAlertsTriggeredTotal, metric.WithDescription("Total threshold events emitted by the detectors"))
	if err != nil {
		return err
	}

	m.AlertsSuppressedTotal, err = meter.Int64Counter(MetricAlertsSuppressedTotal, metric.WithDescription("Total threshold events dropped by cooldown"))
	if err != nil {
		return err
	}

	m.AlertsDispatchedTotal, err = meter.Int64Counter(MetricAlertsDispatchedTotal, metric.WithDescription("Total alerts delivered to the sink"))
	if err != nil {
		return err
	}

	m.AlertsDroppedTotal, err = meter.Int64Counter(MetricAlertsDroppedTotal, metric.WithDescription("Total alerts dropped (overflow or delivery failure)"))
	if err != nil {
		return err
	}

	m.SinkErrorsTotal, err = meter.Int64Counter(MetricSinkErrorsTotal, metric.WithDescription("Total sink send errors"))
	if err != nil {
		return err
	}

	m.ReconnectsTotal, err = meter.Int64Counter(MetricReconnectsTotal, metric.WithDescription("Total reconnect attempts"))
	if err != nil {
		return err
	}

	m.DispatchLatency, err = meter.Float64Histogram(MetricDispatchLatency, metric.WithDescription("Time from enqueue to sink delivery"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.QueueDepth, err = meter.Int64ObservableGauge(MetricQueueDepth, metric.WithDescription("Current dispatch queue depth"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.queueDepth)
			return nil
		}))
	if err != nil {
		return err
	}

	m.WindowEntries, err = meter.Int64ObservableGauge(MetricWindowEntries, metric.WithDescription("Current entries held per sliding window"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.windowEntriesMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ConnectionState, err = meter.Int64ObservableGauge(MetricConnectionState, metric.WithDescription("Connection state (0=disconnected..5=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.connectionState)
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Nil-safe increment helpers. Instruments stay nil until InitMetrics
// runs, so callers can record unconditionally.

func addCounter(c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(context.Background(), n, metric.WithAttributes(attrs...))
}

func (m *MetricsHolder) IncTradesReceived(symbol string) {
	addCounter(m.TradesReceivedTotal, 1, attribute.String("symbol", symbol))
}

func (m *MetricsHolder) IncParseErrors() {
	addCounter(m.ParseErrorsTotal, 1)
}

func (m *MetricsHolder) IncConvertFailures(symbol string) {
	addCounter(m.ConvertFailuresTotal, 1, attribute.String("symbol", symbol))
}

func (m *MetricsHolder) IncRateFetches(quote string, success bool) {
	addCounter(m.RateFetchesTotal, 1,
		attribute.String("quote", quote),
		attribute.Bool("success", success))
}

func (m *MetricsHolder) IncAlertsTriggered(kind string) {
	addCounter(m.AlertsTriggeredTotal, 1, attribute.String("kind", kind))
}

func (m *MetricsHolder) IncAlertsSuppressed(kind string) {
	addCounter(m.AlertsSuppressedTotal, 1, attribute.String("kind", kind))
}

func (m *MetricsHolder) IncAlertsDispatched(kind string) {
	addCounter(m.AlertsDispatchedTotal, 1, attribute.String("kind", kind))
}

func (m *MetricsHolder) IncAlertsDropped(reason string) {
	addCounter(m.AlertsDroppedTotal, 1, attribute.String("reason", reason))
}

func (m *MetricsHolder) IncSinkErrors(sink string) {
	addCounter(m.SinkErrorsTotal, 1, attribute.String("sink", sink))
}

func (m *MetricsHolder) IncReconnects(success bool) {
	addCounter(m.ReconnectsTotal, 1, attribute.Bool("success", success))
}

func (m *MetricsHolder) RecordDispatchLatency(ms float64, kind string) {
	if m.DispatchLatency == nil {
		return
	}
	m.DispatchLatency.Record(context.Background(), ms,
		metric.WithAttributes(attribute.String("kind", kind)))
}

// Helpers to update observable state

func (m *MetricsHolder) SetQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = depth
}

func (m *MetricsHolder) SetWindowEntries(symbol string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windowEntriesMap[symbol] = count
}

func (m *MetricsHolder) SetConnectionState(state int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectionState = state
}

func (m *MetricsHolder) GetWindowEntries() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.windowEntriesMap {
		res[k] = v
	}
	return res
}
