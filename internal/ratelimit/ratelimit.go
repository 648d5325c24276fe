// Package ratelimit implements a fixed-window message counter used to cap
// how many frames a single connection may send per window. Bursts that
// straddle a window boundary are tolerated; this is a counter, not a
// sliding window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts messages inside a fixed window. The first message opens
// the window; once the window elapses the next message opens a fresh one
// with a count of 1.
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
}

// New creates a limiter allowing limit messages per window
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}

	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records one message and reports whether it is within the limit
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 1
		return true
	}

	l.count++
	return l.count <= l.limit
}

// Remaining reports how many messages are left in the current window
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.windowStart.IsZero() || l.now().Sub(l.windowStart) >= l.window {
		return l.limit
	}

	remaining := l.limit - l.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
