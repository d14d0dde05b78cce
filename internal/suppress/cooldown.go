// Package suppress gates threshold events through per-key cooldowns so
// one burst of trades produces one alert per (kind, symbol, side).
package suppress

import (
	"sync"
	"time"

	"whale_watcher/internal/core"
)

// Registry tracks active cooldowns. Expiry is lazy: a key is considered
// expired on the first query past its deadline, and the periodic
// CleanupExpired pass reclaims whatever queries never touch.
type Registry struct {
	mu       sync.Mutex
	expiries map[core.CooldownKey]time.Time

	marked    uint64
	reclaimed uint64

	now func() time.Time
}

// NewRegistry creates an empty cooldown registry.
func NewRegistry() *Registry {
	return &Registry{
		expiries: make(map[core.CooldownKey]time.Time),
		now:      time.Now,
	}
}

// InCooldown reports whether the key is still cooling down. An expired
// entry is removed on the way out.
func (r *Registry) InCooldown(key core.CooldownKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline, ok := r.expiries[key]
	if !ok {
		return false
	}
	if r.now().Before(deadline) {
		return true
	}
	delete(r.expiries, key)
	return false
}

// Mark starts (or extends) a cooldown for the key. A non-positive
// duration disables suppression and is a no-op.
func (r *Registry) Mark(key core.CooldownKey, d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiries[key] = r.now().Add(d)
	r.marked++
}

// Remaining returns how long the key stays suppressed, zero when it is
// free.
func (r *Registry) Remaining(key core.CooldownKey) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline, ok := r.expiries[key]
	if !ok {
		return 0
	}
	left := deadline.Sub(r.now())
	if left <= 0 {
		delete(r.expiries, key)
		return 0
	}
	return left
}

// CleanupExpired removes every entry past its deadline and returns the
// number reclaimed. Called from the engine's periodic maintenance task.
func (r *Registry) CleanupExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, deadline := range r.expiries {
		if !now.Before(deadline) {
			delete(r.expiries, key)
			removed++
		}
	}
	r.reclaimed += uint64(removed)
	return removed
}

// ActiveCount returns the number of keys currently held, expired
// stragglers included.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expiries)
}
