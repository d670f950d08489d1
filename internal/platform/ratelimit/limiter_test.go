package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(clock *fakeClock) *Limiter {
	return NewLimiter(WithClock(clock.Now), WithSweepInterval(0))
}

func TestLimiterFixedWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	defer limiter.Stop()

	const limit = 3
	window := time.Minute

	for i := 0; i < limit; i++ {
		result := limiter.Check("client", limit, window)
		if !result.Allowed {
			t.Fatalf("call %d: expected success", i+1)
		}
		if result.Remaining != limit-i-1 {
			t.Fatalf("call %d: expected remaining %d, got %d", i+1, limit-i-1, result.Remaining)
		}
	}

	result := limiter.Check("client", limit, window)
	if result.Allowed {
		t.Fatal("expected rejection past the limit")
	}
	if result.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", result.Remaining)
	}
	wantReset := clock.Now().Add(window)
	if !result.ResetAt.Equal(wantReset) {
		t.Fatalf("expected reset %s, got %s", wantReset, result.ResetAt)
	}

	clock.Advance(window)
	result = limiter.Check("client", limit, window)
	if !result.Allowed {
		t.Fatal("expected fresh window after reset elapsed")
	}
	if result.Remaining != limit-1 {
		t.Fatalf("expected remaining %d, got %d", limit-1, result.Remaining)
	}
}

func TestLimiterIdentifiersIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	defer limiter.Stop()

	if res := limiter.Check("a", 1, time.Minute); !res.Allowed {
		t.Fatal("first check for a should pass")
	}
	if res := limiter.Check("a", 1, time.Minute); res.Allowed {
		t.Fatal("second check for a should fail")
	}
	if res := limiter.Check("b", 1, time.Minute); !res.Allowed {
		t.Fatal("first check for b should pass")
	}
}

func TestLimiterConcurrentNoLostIncrements(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	defer limiter.Stop()

	const workers = 64

	var wg sync.WaitGroup
	results := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = limiter.Check("shared", workers, time.Minute).Allowed
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Fatalf("worker %d was rejected below the limit", i)
		}
	}
	if res := limiter.Check("shared", workers, time.Minute); res.Allowed {
		t.Fatal("expected rejection after exactly N admissions")
	}
}

func TestLimiterSweepEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	defer limiter.Stop()

	limiter.Check("old", 5, time.Minute)
	limiter.Check("older", 5, 30*time.Second)
	clock.Advance(2 * time.Minute)
	limiter.Check("fresh", 5, time.Minute)

	limiter.sweep()

	if got := limiter.size(); got != 1 {
		t.Fatalf("expected 1 live window after sweep, got %d", got)
	}
}

func TestLimiterRejectsInvalidParameters(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock)
	defer limiter.Stop()

	if res := limiter.Check("x", 0, time.Minute); res.Allowed {
		t.Fatal("zero limit must not admit")
	}
	if res := limiter.Check("x", 5, 0); res.Allowed {
		t.Fatal("zero window must not admit")
	}
}
