// Package recovery owns reconnection policy and the operational error
// ledger. It drives the ingestor through the IRestartable back-edge;
// neither side holds the other directly.
package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"whale_watcher/internal/core"
	"whale_watcher/pkg/telemetry"
)

const (
	attemptHistoryCap = 100
	errorBufferCap    = 1000
)

// Config parameterises the reconnect schedule.
type Config struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	CriticalThreshold int
}

// Status is a point-in-time recovery snapshot.
type Status struct {
	ConsecutiveFailures int
	TotalAttempts       int
	Recoveries          int
	Exhausted           bool
	UptimePercent       float64
	ErrorCount          int
}

// Manager supervises reconnection. Disconnect notifications arrive via
// OnDisconnect; the Run supervisor serialises reconnect cycles so two
// disconnect signals never race two dial loops.
type Manager struct {
	cfg     Config
	backoff *backoff.Backoff
	logger  core.ILogger

	restartable core.IRestartable
	stateProbe  func() core.ConnectionState
	notify      func(text string) bool
	onRecovered func()

	kicks chan error

	mu            sync.Mutex
	attempts      []core.ReconnectAttempt
	errors        []core.ErrorRecord
	consecutive   int
	totalAttempts int
	recoveries    int
	exhausted     bool
	startedAt     time.Time
	disconnectAt  time.Time
	totalDowntime time.Duration

	now func() time.Time
}

// NewManager builds a recovery manager with the given schedule.
func NewManager(cfg Config, logger core.ILogger) *Manager {
	return &Manager{
		cfg: cfg,
		backoff: &backoff.Backoff{
			Min:    cfg.BaseBackoff,
			Max:    cfg.MaxBackoff,
			Factor: 2,
			Jitter: false,
		},
		logger:    logger.WithField("component", "recovery"),
		kicks:     make(chan error, 1),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// SetRestartable wires the connection back-edge.
func (m *Manager) SetRestartable(r core.IRestartable) {
	m.restartable = r
}

// SetStateProbe wires a connection state reader used to ignore stale
// disconnect signals.
func (m *Manager) SetStateProbe(fn func() core.ConnectionState) {
	m.stateProbe = fn
}

// SetNotifier wires operational notifications (dispatcher admin path).
func (m *Manager) SetNotifier(fn func(text string) bool) {
	m.notify = fn
}

// SetOnRecovered registers a callback fired after each successful
// reconnect.
func (m *Manager) SetOnRecovered(fn func()) {
	m.onRecovered = fn
}

// OnDisconnect signals that the stream dropped. Signals collapse: one
// pending kick is enough, the reconnect cycle re-checks state anyway.
func (m *Manager) OnDisconnect(cause error) {
	m.mu.Lock()
	if m.disconnectAt.IsZero() {
		m.disconnectAt = m.now()
	}
	m.mu.Unlock()

	select {
	case m.kicks <- cause:
	default:
	}
}

// Run is the supervisor loop. It blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cause := <-m.kicks:
			m.reconnect(ctx, cause)
		}
	}
}

// reconnect dials until the connection is back, the schedule is
// exhausted, or ctx dies.
func (m *Manager) reconnect(ctx context.Context, cause error) {
	if m.restartable == nil {
		m.logger.Error("no restartable wired, cannot reconnect")
		return
	}
	if m.stateProbe != nil {
		switch m.stateProbe() {
		case core.StateConnected:
			// Stale kick: the stream came back on its own.
			m.mu.Lock()
			m.disconnectAt = time.Time{}
			m.mu.Unlock()
			return
		case core.StateClosed, core.StateFailed:
			return
		}
	}
	m.mu.Lock()
	if m.exhausted {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if cause != nil {
		m.logger.Warn("stream disconnected, starting recovery", "cause", cause.Error())
	}

	for {
		m.mu.Lock()
		attemptNo := m.consecutive + 1
		m.mu.Unlock()

		wait := m.backoff.ForAttempt(float64(attemptNo - 1))
		m.logger.Info("waiting before reconnect attempt",
			"attempt", attemptNo,
			"backoff", wait.String())

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		start := m.now()
		err := m.restartable.Restart(ctx)
		end := m.now()
		telemetry.GetGlobalMetrics().IncReconnects(err == nil)

		attempt := core.ReconnectAttempt{
			AttemptNumber: attemptNo,
			StartedAt:     start,
			EndedAt:       end,
			Success:       err == nil,
			Backoff:       wait,
		}
		if err != nil {
			attempt.Err = err.Error()
		}

		m.mu.Lock()
		m.totalAttempts++
		m.attempts = append(m.attempts, attempt)
		if len(m.attempts) > attemptHistoryCap {
			m.attempts = m.attempts[len(m.attempts)-attemptHistoryCap:]
		}

		if err == nil {
			m.consecutive = 0
			m.recoveries++
			outage := end.Sub(m.disconnectAt)
			m.totalDowntime += outage
			m.disconnectAt = time.Time{}
			m.mu.Unlock()

			m.logger.Info("connection recovered",
				"attempt", attemptNo,
				"outage", outage.String())
			if m.notify != nil {
				m.notify(fmt.Sprintf("✅ stream recovered after %d attempt(s), outage %s",
					attemptNo, outage.Round(time.Second)))
			}
			if m.onRecovered != nil {
				m.onRecovered()
			}
			return
		}

		m.consecutive++
		failures := m.consecutive
		m.mu.Unlock()

		severity := core.SeverityMedium
		if failures >= m.cfg.CriticalThreshold {
			severity = core.SeverityHigh
		}
		m.RecordError("recovery",
			fmt.Sprintf("reconnect attempt %d failed: %v", attemptNo, err), severity)

		if failures == m.cfg.CriticalThreshold && m.notify != nil {
			m.notify(fmt.Sprintf("⚠️ %d consecutive reconnect failures, last error: %v",
				failures, err))
		}

		if failures >= m.cfg.MaxAttempts {
			m.mu.Lock()
			m.exhausted = true
			m.mu.Unlock()

			m.restartable.Abandon()
			m.RecordError("recovery",
				fmt.Sprintf("reconnect abandoned after %d attempts", failures),
				core.SeverityCritical)
			m.logger.Error("reconnect schedule exhausted, manual intervention required",
				"attempts", failures)
			if m.notify != nil {
				m.notify(fmt.Sprintf("🛑 stream down, giving up after %d attempts. Manual restart required.",
					failures))
			}
			return
		}
	}
}

// RecordError appends to the rolling error buffer. Any component with
// operational failures reports here.
func (m *Manager) RecordError(component, message string, severity core.ErrorSeverity) {
	rec := core.ErrorRecord{
		At:        m.now(),
		Severity:  severity,
		Component: component,
		Message:   message,
	}

	m.mu.Lock()
	m.errors = append(m.errors, rec)
	if len(m.errors) > errorBufferCap {
		m.errors = m.errors[len(m.errors)-errorBufferCap:]
	}
	m.mu.Unlock()

	switch severity {
	case core.SeverityHigh, core.SeverityCritical:
		m.logger.Error("component error recorded",
			"source", component, "severity", string(severity), "message", message)
	default:
		m.logger.Debug("component error recorded",
			"source", component, "severity", string(severity), "message", message)
	}
}

// RecentErrors returns up to n latest error records, newest last.
func (m *Manager) RecentErrors(n int) []core.ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > len(m.errors) {
		n = len(m.errors)
	}
	out := make([]core.ErrorRecord, n)
	copy(out, m.errors[len(m.errors)-n:])
	return out
}

// Attempts returns a copy of the reconnect ledger.
func (m *Manager) Attempts() []core.ReconnectAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.ReconnectAttempt, len(m.attempts))
	copy(out, m.attempts)
	return out
}

// ConsecutiveFailures returns the current failure streak.
func (m *Manager) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutive
}

// Exhausted reports whether the schedule gave up.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

// Reset clears the failure streak and exhaustion flag so an operator
// can restart recovery after a FAILED state.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutive = 0
	m.exhausted = false
}

// UptimePercent returns stream availability since start, counting the
// ongoing outage when disconnected.
func (m *Manager) UptimePercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	total := now.Sub(m.startedAt)
	if total <= 0 {
		return 100
	}
	down := m.totalDowntime
	if !m.disconnectAt.IsZero() {
		down += now.Sub(m.disconnectAt)
	}
	pct := float64(total-down) / float64(total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Snapshot returns the current recovery status.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	consecutive := m.consecutive
	totalAttempts := m.totalAttempts
	recoveries := m.recoveries
	exhausted := m.exhausted
	errCount := len(m.errors)
	m.mu.Unlock()

	return Status{
		ConsecutiveFailures: consecutive,
		TotalAttempts:       totalAttempts,
		Recoveries:          recoveries,
		Exhausted:           exhausted,
		UptimePercent:       m.UptimePercent(),
		ErrorCount:          errCount,
	}
}
