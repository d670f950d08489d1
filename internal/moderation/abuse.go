package moderation

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultAbuseCacheSize = 4096

// AbuseTracker counts policy rejections per client inside a rolling TTL.
// A client that keeps tripping the content checks is treated as abusive
// until its entry expires, independent of any manual block.
type AbuseTracker struct {
	threshold int

	mu    sync.Mutex
	cache *lru.LRU[string, int]
}

// NewAbuseTracker builds a tracker; counts expire after ttl and at most
// defaultAbuseCacheSize clients are tracked at once.
func NewAbuseTracker(threshold int, ttl time.Duration) *AbuseTracker {
	return &AbuseTracker{
		threshold: threshold,
		cache:     lru.NewLRU[string, int](defaultAbuseCacheSize, nil, ttl),
	}
}

// RecordRejection adds one strike for the client and returns the new count.
func (t *AbuseTracker) RecordRejection(client string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	count, _ := t.cache.Get(client)
	count++
	t.cache.Add(client, count)
	return count
}

// IsAbusive reports whether the client's strike count reached the threshold.
// A threshold of zero or less disables escalation.
func (t *AbuseTracker) IsAbusive(client string) bool {
	if t.threshold <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	count, ok := t.cache.Get(client)
	return ok && count >= t.threshold
}
