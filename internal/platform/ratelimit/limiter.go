// Package ratelimit implements the process-local throttling state shared by
// every request: a fixed-window counter keyed by arbitrary identifiers, a
// per-IP guard with a manual block set, and per-endpoint window policies.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// Result reports the outcome of a window check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window counter over string identifiers. Windows reset at
// fixed boundaries, so a burst straddling a boundary can admit up to twice the
// limit; that coarseness is an accepted property of the scheme.
type Limiter struct {
	clock func() time.Time

	mu      sync.Mutex
	windows map[string]window

	stopOnce sync.Once
	stopCh   chan struct{}
}

type limiterSettings struct {
	sweepInterval time.Duration
}

// NewLimiter constructs a limiter and starts its background sweep.
func NewLimiter(opts ...LimiterOption) *Limiter {
	settings := limiterSettings{sweepInterval: defaultSweepInterval}
	l := &Limiter{
		clock:   time.Now,
		windows: make(map[string]window),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l, &settings)
		}
	}
	if settings.sweepInterval > 0 {
		go l.sweepLoop(settings.sweepInterval)
	}
	return l
}

// LimiterOption customises Limiter construction.
type LimiterOption func(*Limiter, *limiterSettings)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) LimiterOption {
	return func(l *Limiter, _ *limiterSettings) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSweepInterval overrides the eviction period. Zero disables the sweep;
// expired windows are then reclaimed lazily on next access only.
func WithSweepInterval(interval time.Duration) LimiterOption {
	return func(_ *Limiter, s *limiterSettings) {
		s.sweepInterval = interval
	}
}

// Check records one access for the identifier against the given limit and
// window. The first access, or any access after the stored window elapsed,
// opens a fresh window with count 1. Within a live window the count increments
// until the limit is reached; further accesses fail with the stored reset time
// unchanged so callers can compute a retry delay.
func (l *Limiter) Check(identifier string, limit int, windowSize time.Duration) Result {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		identifier = "unknown"
	}
	if limit <= 0 || windowSize <= 0 {
		return Result{Allowed: false}
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.windows[identifier]
	if !ok || !now.Before(entry.resetAt) {
		reset := now.Add(windowSize)
		l.windows[identifier] = window{count: 1, resetAt: reset}
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: reset}
	}

	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: entry.resetAt}
	}

	entry.count++
	l.windows[identifier] = entry
	return Result{Allowed: true, Remaining: limit - entry.count, ResetAt: entry.resetAt}
}

// Stop halts the background sweep. Used at process shutdown.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

// sweep evicts expired windows. It snapshots the table under the lock, then
// deletes candidates one key at a time with a re-check, so request traffic is
// never blocked behind a full-table mutation.
func (l *Limiter) sweep() {
	now := l.clock()

	l.mu.Lock()
	snapshot := make(map[string]time.Time, len(l.windows))
	for key, entry := range l.windows {
		snapshot[key] = entry.resetAt
	}
	l.mu.Unlock()

	for key, resetAt := range snapshot {
		if now.Before(resetAt) {
			continue
		}
		l.mu.Lock()
		if entry, ok := l.windows[key]; ok && !now.Before(entry.resetAt) {
			delete(l.windows, key)
		}
		l.mu.Unlock()
	}
}

// size reports the number of live windows, for tests.
func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
