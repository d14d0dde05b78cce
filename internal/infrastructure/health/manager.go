// Package health aggregates per-component liveness checks.
package health

import (
	"sort"
	"sync"

	"whale_watcher/internal/core"
)

// Manager runs registered check functions on demand. Components report
// their own staleness; the manager only aggregates.
type Manager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
}

func NewManager(logger core.ILogger) *Manager {
	m := &Manager{checks: make(map[string]func() error)}
	if logger != nil {
		m.logger = logger.WithField("component", "health")
	}
	return m
}

// Register adds or replaces the check for a component.
func (m *Manager) Register(component string, check func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[component] = check
}

// GetStatus evaluates every check and reports per-component state.
func (m *Manager) GetStatus() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]string, len(m.checks))
	for component, check := range m.checks {
		if err := check(); err != nil {
			status[component] = "Unhealthy: " + err.Error()
		} else {
			status[component] = "Healthy"
		}
	}
	return status
}

// IsHealthy reports whether every registered check passes.
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, check := range m.checks {
		if err := check(); err != nil {
			return false
		}
	}
	return true
}

// Unhealthy returns the names of failing components, sorted.
func (m *Manager) Unhealthy() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failing []string
	for component, check := range m.checks {
		if err := check(); err != nil {
			failing = append(failing, component)
		}
	}
	sort.Strings(failing)
	return failing
}
