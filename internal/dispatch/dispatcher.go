package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
	"whale_watcher/pkg/telemetry"
)

// Config parameterises the dispatcher.
type Config struct {
	RateLimitPerMinute int
	QueueCapacity      int
	RetryDelay         time.Duration
	DrainTimeout       time.Duration
	DrainPending       bool
	// RateWindow is the rolling-limit window, one minute unless a test
	// shrinks it.
	RateWindow time.Duration
}

// pending is one queued alert plus its delivery bookkeeping.
type pending struct {
	alert      core.Alert
	resetter   core.IWindowResetter
	attempts   int
	enqueuedAt time.Time
}

// Dispatcher owns the outbound alert queue. Producers (detector
// pipelines, recovery notifications, retries) enqueue; one consumer
// paces sends through the rolling rate limit. A failed send is retried
// once after RetryDelay, then dropped.
type Dispatcher struct {
	queue     chan *pending
	limiter   *RollingLimiter
	renderer  *Renderer
	deliverer core.IAlertDeliverer
	logger    core.ILogger

	retryDelay   time.Duration
	drainTimeout time.Duration
	drainPending bool

	onDelivered func(core.Alert)

	wg      sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool

	enqueued   atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	retried    atomic.Uint64
	failed     atomic.Uint64
}

// Stats is a point-in-time dispatcher snapshot.
type Stats struct {
	Enqueued   uint64
	Dispatched uint64
	Dropped    uint64
	Retried    uint64
	Failed     uint64
	QueueDepth int
}

// NewDispatcher builds the dispatcher. Delivery goes through the given
// deliverer; rendering happens at enqueue time.
func NewDispatcher(cfg Config, renderer *Renderer, deliverer core.IAlertDeliverer, logger core.ILogger) *Dispatcher {
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	capacity := cfg.QueueCapacity
	if capacity < 1 {
		capacity = 1024
	}
	return &Dispatcher{
		queue:        make(chan *pending, capacity),
		limiter:      NewRollingLimiter(cfg.RateLimitPerMinute, window),
		renderer:     renderer,
		deliverer:    deliverer,
		logger:       logger.WithField("component", "dispatcher"),
		retryDelay:   cfg.RetryDelay,
		drainTimeout: cfg.DrainTimeout,
		drainPending: cfg.DrainPending,
	}
}

// SetOnDelivered registers a hook invoked after each successful send.
// The engine uses it to archive delivered alerts.
func (d *Dispatcher) SetOnDelivered(fn func(core.Alert)) {
	d.onDelivered = fn
}

// Start launches the consumer. It exits when ctx is cancelled, after
// draining per configuration.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return apperrors.ErrAlreadyRunning
	}
	d.wg.Add(1)
	go d.consume(ctx)
	d.logger.Info("dispatcher started",
		"rate_limit", d.limiter.max,
		"queue_capacity", cap(d.queue))
	return nil
}

// Stop waits for the consumer and any retry timers to finish. The run
// context must already be cancelled.
func (d *Dispatcher) Stop() error {
	if !d.stopped.CompareAndSwap(false, true) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.drainTimeout + 5*time.Second):
		d.logger.Warn("dispatcher stop timed out")
	}
	return nil
}

// Enqueue renders the event and queues the alert. The optional
// resetter is invoked with the event's (symbol, side) after a
// successful cumulative delivery. Returns false when the alert could
// not be admitted.
func (d *Dispatcher) Enqueue(ev core.ThresholdEvent, resetter core.IWindowResetter) bool {
	now := time.Now()
	item := &pending{
		alert: core.Alert{
			ID:              uuid.NewString(),
			Event:           ev,
			RenderedMessage: d.renderer.Render(ev),
			CreatedAt:       now,
		},
		resetter:   resetter,
		enqueuedAt: now,
	}
	if !d.offer(item) {
		return false
	}
	d.enqueued.Add(1)
	return true
}

// EnqueueMessage queues pre-rendered operational text, sharing the
// queue and rate limit with detector alerts.
func (d *Dispatcher) EnqueueMessage(text string) bool {
	now := time.Now()
	item := &pending{
		alert: core.Alert{
			ID:              uuid.NewString(),
			Event:           core.ThresholdEvent{Kind: core.KindAdmin, ObservedAt: now},
			RenderedMessage: text,
			CreatedAt:       now,
		},
		enqueuedAt: now,
	}
	if !d.offer(item) {
		return false
	}
	d.enqueued.Add(1)
	return true
}

// offer admits the item, evicting the oldest queued alert on overflow.
func (d *Dispatcher) offer(item *pending) bool {
	if d.stopped.Load() {
		return false
	}

	select {
	case d.queue <- item:
	default:
		select {
		case old := <-d.queue:
			d.dropped.Add(1)
			telemetry.GetGlobalMetrics().IncAlertsDropped("overflow")
			d.logger.Warn("queue full, dropped oldest alert",
				"dropped_id", old.alert.ID,
				"dropped_kind", string(old.alert.Event.Kind))
		default:
		}
		select {
		case d.queue <- item:
		default:
			d.dropped.Add(1)
			telemetry.GetGlobalMetrics().IncAlertsDropped("overflow")
			return false
		}
	}
	telemetry.GetGlobalMetrics().SetQueueDepth(int64(len(d.queue)))
	return true
}

func (d *Dispatcher) consume(ctx context.Context) {
	defer d.wg.Done()
	for {
		// Cancellation wins over queued work.
		if ctx.Err() != nil {
			d.drain()
			return
		}
		select {
		case <-ctx.Done():
			d.drain()
			return
		case item := <-d.queue:
			d.deliver(ctx, item)
			telemetry.GetGlobalMetrics().SetQueueDepth(int64(len(d.queue)))
		}
	}
}

// drain empties the queue after cancellation, bounded by the drain
// timeout. With draining disabled, pending alerts are dropped.
func (d *Dispatcher) drain() {
	if !d.drainPending {
		if n := len(d.queue); n > 0 {
			d.dropped.Add(uint64(n))
			d.logger.Warn("dropping pending alerts on stop", "count", n)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()
	for {
		select {
		case item := <-d.queue:
			d.deliver(ctx, item)
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				d.dropped.Add(uint64(n))
				d.logger.Warn("drain deadline hit, alerts left behind", "count", n)
			}
			return
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, item *pending) {
	for !d.limiter.TryAcquire() {
		wait := d.limiter.NextPermitIn()
		if wait <= 0 {
			wait = 25 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			d.dropped.Add(1)
			telemetry.GetGlobalMetrics().IncAlertsDropped("shutdown")
			return
		case <-time.After(wait):
		}
	}

	kind := string(item.alert.Event.Kind)
	if err := d.deliverer.Deliver(ctx, item.alert); err != nil {
		d.logger.Error("alert delivery failed",
			"id", item.alert.ID,
			"kind", kind,
			"attempt", item.attempts+1,
			"error", err.Error())
		if item.attempts == 0 {
			item.attempts++
			d.retried.Add(1)
			d.scheduleRetry(ctx, item)
		} else {
			d.failed.Add(1)
			telemetry.GetGlobalMetrics().IncAlertsDropped("delivery_failed")
			d.logger.Error("alert dropped after retry", "id", item.alert.ID)
		}
		return
	}

	d.dispatched.Add(1)
	telemetry.GetGlobalMetrics().IncAlertsDispatched(kind)
	telemetry.GetGlobalMetrics().RecordDispatchLatency(
		float64(time.Since(item.enqueuedAt).Milliseconds()), kind)

	if d.onDelivered != nil {
		d.onDelivered(item.alert)
	}
	if item.alert.Event.Kind == core.KindCumulative && item.resetter != nil {
		item.resetter.Reset(item.alert.Event.Symbol, item.alert.Event.Side)
	}
}

func (d *Dispatcher) scheduleRetry(ctx context.Context, item *pending) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(d.retryDelay):
			d.offer(item)
		}
	}()
}

// QueueDepth returns the number of alerts waiting.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:   d.enqueued.Load(),
		Dispatched: d.dispatched.Load(),
		Dropped:    d.dropped.Load(),
		Retried:    d.retried.Load(),
		Failed:     d.failed.Load(),
		QueueDepth: len(d.queue),
	}
}
