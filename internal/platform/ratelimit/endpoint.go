package ratelimit

import (
	"time"
)

// Policy is the limit/window pair applied to one endpoint class.
type Policy struct {
	Limit  int
	Window time.Duration
}

// EndpointResult is a window check outcome plus the policy that produced it,
// so the boundary layer can emit rate-limit response headers.
type EndpointResult struct {
	Result
	Limit  int
	Window time.Duration
}

// EndpointGuard applies per-endpoint windows keyed by client and path.
type EndpointGuard struct {
	limiter  *Limiter
	policies map[string]Policy
	fallback Policy
}

// NewEndpointGuard builds a guard over the shared limiter. Paths not present
// in policies fall back to the default policy.
func NewEndpointGuard(limiter *Limiter, policies map[string]Policy, fallback Policy) *EndpointGuard {
	copied := make(map[string]Policy, len(policies))
	for path, policy := range policies {
		copied[path] = policy
	}
	return &EndpointGuard{
		limiter:  limiter,
		policies: copied,
		fallback: fallback,
	}
}

// Check consumes one access for the client against the path's policy. The key
// concatenates client and path; paths never contain the separator ambiguity
// that would collide two clients.
func (g *EndpointGuard) Check(client, path string) EndpointResult {
	policy, ok := g.policies[path]
	if !ok {
		policy = g.fallback
	}
	result := g.limiter.Check(client+"-"+path, policy.Limit, policy.Window)
	return EndpointResult{Result: result, Limit: policy.Limit, Window: policy.Window}
}
