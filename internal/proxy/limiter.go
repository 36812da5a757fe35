package proxy

import (
	"sync"
	"time"
)

// WindowLimiter is a fixed-window advisory rate limiter shared by every
// upstream call. It never blocks or rejects: the upstream enforces its own
// hard limit with 429s that the retry path absorbs, so going over budget here
// is only worth recording, not stopping.
type WindowLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	permits int
	start   time.Time
	used    int

	now func() time.Time
}

// NewWindowLimiter budgets permits requests per window.
func NewWindowLimiter(permits int, window time.Duration) *WindowLimiter {
	if permits <= 0 {
		permits = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &WindowLimiter{
		window:  window,
		permits: permits,
		now:     time.Now,
	}
}

// Take consumes a permit and reports whether the current window still had
// one. The caller proceeds either way.
func (l *WindowLimiter) Take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.start) >= l.window {
		l.start = now
		l.used = 0
	}
	l.used++
	return l.used <= l.permits
}
