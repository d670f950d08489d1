package ratelimit

import (
	"sync"
	"time"
)

const ipKeyPrefix = "ip-"

// IPGuard layers a coarse hourly ceiling and a manual block set over the
// limiter. Blocked identifiers stay blocked for the process lifetime; the
// block set is deliberately not persisted.
type IPGuard struct {
	limiter *Limiter
	limit   int
	window  time.Duration

	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewIPGuard wires the guard to a shared limiter with the configured hourly ceiling.
func NewIPGuard(limiter *Limiter, limit int, window time.Duration) *IPGuard {
	return &IPGuard{
		limiter: limiter,
		limit:   limit,
		window:  window,
		blocked: make(map[string]struct{}),
	}
}

// IsBlocked reports manual block membership. O(1), independent of rate state.
func (g *IPGuard) IsBlocked(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.blocked[id]
	return ok
}

// Block adds the identifier to the block set. The value must never be logged
// by callers of this operation.
func (g *IPGuard) Block(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked[id] = struct{}{}
}

// Unblock removes the identifier from the block set.
func (g *IPGuard) Unblock(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blocked, id)
}

// Policy returns the hourly ceiling applied per client.
func (g *IPGuard) Policy() Policy {
	return Policy{Limit: g.limit, Window: g.window}
}

// CheckLimit consumes one access against the per-IP hourly window.
func (g *IPGuard) CheckLimit(id string) Result {
	return g.limiter.Check(ipKeyPrefix+id, g.limit, g.window)
}
