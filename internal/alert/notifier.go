package alert

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"whale_watcher/internal/core"
	"whale_watcher/pkg/concurrency"
	apperrors "whale_watcher/pkg/errors"
	"whale_watcher/pkg/telemetry"
)

// Notifier delivers one alert to every whitelisted recipient. Sends run
// in parallel on a small worker pool; delivery counts as successful
// when at least one recipient got the message.
type Notifier struct {
	sink      core.ISink
	whitelist core.IWhitelist
	pool      *concurrency.WorkerPool
	logger    core.ILogger

	delivered  atomic.Uint64
	failed     atomic.Uint64
	sendErrors atomic.Uint64
}

// NotifierStats is a point-in-time snapshot of delivery counters.
type NotifierStats struct {
	Delivered  uint64 `json:"delivered"`
	Failed     uint64 `json:"failed"`
	SendErrors uint64 `json:"send_errors"`
}

func NewNotifier(sink core.ISink, whitelist core.IWhitelist, logger core.ILogger) *Notifier {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "alert_fanout",
		MaxWorkers:  4,
		MaxCapacity: 256,
	}, logger)

	return &Notifier{
		sink:      sink,
		whitelist: whitelist,
		pool:      pool,
		logger:    logger.WithField("component", "notifier"),
	}
}

// Deliver fans the rendered message out to the whole whitelist and
// blocks until every send settled. Partial failure is logged but not
// fatal; only losing every recipient fails the alert.
func (n *Notifier) Deliver(ctx context.Context, a core.Alert) error {
	recipients := n.whitelist.Whitelist()
	if len(recipients) == 0 {
		n.failed.Add(1)
		return apperrors.ErrNoRecipients
	}

	var wg sync.WaitGroup
	var succeeded atomic.Int64
	for _, recipient := range recipients {
		recipient := recipient
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := n.sink.Send(ctx, recipient, a.RenderedMessage); err != nil {
				n.sendErrors.Add(1)
				telemetry.GetGlobalMetrics().IncSinkErrors(n.sink.Name())
				n.logger.Warn("Alert send failed",
					"sink", n.sink.Name(),
					"recipient", recipient,
					"alert_id", a.ID,
					"error", err)
				return
			}
			succeeded.Add(1)
		}
		if err := n.pool.Submit(task); err != nil {
			// Pool saturated; send inline rather than drop.
			task()
		}
	}
	wg.Wait()

	if succeeded.Load() == 0 {
		n.failed.Add(1)
		return fmt.Errorf("%w: all %d recipients failed via %s",
			apperrors.ErrSink, len(recipients), n.sink.Name())
	}
	n.delivered.Add(1)
	return nil
}

// Stop drains the fan-out pool. Call after the dispatcher stopped
// feeding alerts.
func (n *Notifier) Stop() {
	n.pool.Stop()
}

func (n *Notifier) Stats() NotifierStats {
	return NotifierStats{
		Delivered:  n.delivered.Load(),
		Failed:     n.failed.Load(),
		SendErrors: n.sendErrors.Load(),
	}
}
