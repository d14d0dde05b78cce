// Package dispatch serialises outbound alerts: one bounded queue, one
// consumer, a rolling-window rate limit and a single retry per alert.
package dispatch

import (
	"sync"
	"time"
)

// RollingLimiter admits at most max sends per rolling window. It keeps
// the timestamps of admitted sends and prunes them as the window
// slides, so a burst early in the window blocks exactly until the
// oldest send falls out.
type RollingLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	admitted []time.Time
	now      func() time.Time
}

// NewRollingLimiter creates a limiter for max admissions per window.
func NewRollingLimiter(max int, window time.Duration) *RollingLimiter {
	return &RollingLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// TryAcquire admits one send if the window has room.
func (l *RollingLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.admitted) >= l.max {
		return false
	}
	l.admitted = append(l.admitted, now)
	return true
}

// NextPermitIn returns how long until a permit frees up, zero when one
// is available now.
func (l *RollingLimiter) NextPermitIn() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.admitted) < l.max {
		return 0
	}
	return l.admitted[0].Add(l.window).Sub(now)
}

// Remaining returns how many permits the current window still has.
func (l *RollingLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return l.max - len(l.admitted)
}

func (l *RollingLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	idx := 0
	for idx < len(l.admitted) && !l.admitted[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.admitted = append(l.admitted[:0], l.admitted[idx:]...)
	}
}
