package aggregate

import (
	"fmt"
	"sync"
	"time"

	"whale_watcher/internal/core"
	apperrors "whale_watcher/pkg/errors"
)

// windowOptions are the presets accepted for runtime switches, in
// minutes. Configuration may start anywhere in [1, 1440].
var windowOptions = []int{5, 15, 30, 60, 120, 240}

// Resizable is a sliding window whose duration can change at runtime
type Resizable interface {
	Resize(window time.Duration) error
}

// Manager owns the runtime-adjustable window duration shared by the
// large-order pipeline. Switching the duration resizes every attached
// window and notifies listeners so dependent thresholds can be
// re-announced.
type Manager struct {
	mu       sync.RWMutex
	minutes  int
	targets  []Resizable
	onChange []func(time.Duration)
	logger   core.ILogger
}

// NewManager creates a window manager at the given initial duration
func NewManager(initialMinutes int, logger core.ILogger) (*Manager, error) {
	if initialMinutes < 1 || initialMinutes > 1440 {
		return nil, fmt.Errorf("%w: %d minutes not in [1, 1440]", apperrors.ErrInvalidWindow, initialMinutes)
	}
	return &Manager{
		minutes: initialMinutes,
		logger:  logger,
	}, nil
}

// Current returns the active window duration
func (m *Manager) Current() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.minutes) * time.Minute
}

// CurrentMinutes returns the active window duration in minutes
func (m *Manager) CurrentMinutes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minutes
}

// Options returns the presets accepted by Set
func (m *Manager) Options() []int {
	out := make([]int, len(windowOptions))
	copy(out, windowOptions)
	return out
}

// Attach registers a window to be resized on every switch
func (m *Manager) Attach(target Resizable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, target)
}

// OnChange registers a listener invoked after a successful switch
func (m *Manager) OnChange(fn func(time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Set switches the window to one of the presets. Attached windows are
// resized, which clears their accumulated entries. Setting the
// current value is a no-op.
func (m *Manager) Set(minutes int) error {
	if !isOption(minutes) {
		return fmt.Errorf("%w: %d minutes not in %v", apperrors.ErrInvalidWindow, minutes, windowOptions)
	}

	m.mu.Lock()
	if minutes == m.minutes {
		m.mu.Unlock()
		return nil
	}
	previous := m.minutes
	m.minutes = minutes
	window := time.Duration(minutes) * time.Minute
	targets := make([]Resizable, len(m.targets))
	copy(targets, m.targets)
	listeners := make([]func(time.Duration), len(m.onChange))
	copy(listeners, m.onChange)
	m.mu.Unlock()

	for _, target := range targets {
		if err := target.Resize(window); err != nil {
			return fmt.Errorf("failed to resize window: %w", err)
		}
	}
	for _, fn := range listeners {
		fn(window)
	}

	if m.logger != nil {
		m.logger.Info("Aggregation window switched",
			"previous_minutes", previous,
			"current_minutes", minutes)
	}
	return nil
}

func isOption(minutes int) bool {
	for _, opt := range windowOptions {
		if opt == minutes {
			return true
		}
	}
	return false
}
