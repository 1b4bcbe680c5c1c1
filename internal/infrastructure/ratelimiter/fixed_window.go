// Package ratelimiter throttles callers of the local debug surface.
package ratelimiter

import (
	"sync"
	"time"
)

type Limiter interface {
	// Allow reports whether key may proceed, and otherwise how long until
	// its window resets.
	Allow(key string) (bool, time.Duration)
}

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow counts requests per key in windows aligned to the window
// length. Expired keys are swept lazily on Allow.
type FixedWindow struct {
	mu        sync.Mutex
	limit     int
	length    time.Duration
	now       func() time.Time
	windows   map[string]*window
	nextSweep time.Time
}

func NewFixedWindow(limit int, length time.Duration) *FixedWindow {
	return newFixedWindow(limit, length, time.Now)
}

func newFixedWindow(limit int, length time.Duration, now func() time.Time) *FixedWindow {
	if length <= 0 {
		length = time.Minute
	}
	return &FixedWindow{
		limit:   limit,
		length:  length,
		now:     now,
		windows: make(map[string]*window),
	}
}

func (l *FixedWindow) Allow(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Truncate(l.length).Add(l.length)}
		l.windows[key] = w
	}

	if w.count >= l.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

func (l *FixedWindow) sweepLocked(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
	l.nextSweep = now.Add(l.length)
}

// Len is the number of keys currently tracked.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
