package suppress

import (
	"sync/atomic"
	"time"

	"whale_watcher/internal/core"
	"whale_watcher/pkg/telemetry"
)

// Handler receives events that survive suppression.
type Handler func(ev core.ThresholdEvent)

// Suppressor sits between a detector family and the dispatcher. Each
// family owns its registry, so the taker and large-order pipelines cool
// down independently even when their keys collide.
type Suppressor struct {
	registry  *Registry
	durations map[core.EventKind]time.Duration
	next      Handler
	logger    core.ILogger

	passed     atomic.Uint64
	suppressed atomic.Uint64
}

// NewSuppressor wires a cooldown policy in front of next. Kinds absent
// from durations pass through unsuppressed.
func NewSuppressor(registry *Registry, durations map[core.EventKind]time.Duration, next Handler, logger core.ILogger) *Suppressor {
	return &Suppressor{
		registry:  registry,
		durations: durations,
		next:      next,
		logger:    logger.WithField("component", "suppressor"),
	}
}

// Process forwards the event unless its key is cooling down. The
// cooldown is marked before the handoff, so a second crossing arriving
// while dispatch is still pending is already suppressed.
func (s *Suppressor) Process(ev core.ThresholdEvent) bool {
	key := ev.Key()
	d := s.durations[ev.Kind]

	if d > 0 && s.registry.InCooldown(key) {
		s.suppressed.Add(1)
		telemetry.GetGlobalMetrics().IncAlertsSuppressed(string(ev.Kind))
		s.logger.Debug("event suppressed by cooldown",
			"key", key.String(),
			"remaining", s.registry.Remaining(key).String())
		return false
	}

	if d > 0 {
		s.registry.Mark(key, d)
	}
	s.passed.Add(1)
	s.next(ev)
	return true
}

// Suppressed returns how many events the cooldown dropped.
func (s *Suppressor) Suppressed() uint64 {
	return s.suppressed.Load()
}

// Passed returns how many events went through to dispatch.
func (s *Suppressor) Passed() uint64 {
	return s.passed.Load()
}
