package moderation

import (
	"strings"
	"sync"
	"time"
)

// DuplicateVerdict reports whether text matches a recently accepted
// submission and how closely, on a 0-100 scale.
type DuplicateVerdict struct {
	IsDuplicate bool
	Similarity  float64
}

// DuplicateDetector remembers normalized submissions for a trailing window
// and flags exact or near matches. The retained map is capped so similarity
// scans stay bounded under sustained load.
type DuplicateDetector struct {
	window     time.Duration
	maxEntries int
	clock      func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// DetectorOption customises DuplicateDetector construction.
type DetectorOption func(*DuplicateDetector)

// WithDetectorClock overrides the time source, for tests.
func WithDetectorClock(clock func() time.Time) DetectorOption {
	return func(d *DuplicateDetector) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDuplicateDetector builds a detector with the given retention window and
// entry cap. A cap of zero or less means unbounded.
func NewDuplicateDetector(window time.Duration, maxEntries int, opts ...DetectorOption) *DuplicateDetector {
	d := &DuplicateDetector{
		window:     window,
		maxEntries: maxEntries,
		clock:      time.Now,
		entries:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// CheckDuplicate purges entries older than the window, then tests the
// normalized text for an exact match or an edit-distance similarity above
// 0.9 against every retained entry. Non-duplicates are recorded; duplicates
// leave the map untouched.
func (d *DuplicateDetector) CheckDuplicate(text string) DuplicateVerdict {
	normalized := strings.ToLower(strings.TrimSpace(text))
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, seenAt := range d.entries {
		if now.Sub(seenAt) > d.window {
			delete(d.entries, key)
		}
	}

	if _, ok := d.entries[normalized]; ok {
		return DuplicateVerdict{IsDuplicate: true, Similarity: 100}
	}

	for existing := range d.entries {
		score := similarity(normalized, existing)
		if score > 0.9 {
			return DuplicateVerdict{IsDuplicate: true, Similarity: score * 100}
		}
	}

	if d.maxEntries > 0 && len(d.entries) >= d.maxEntries {
		d.evictOldestLocked()
	}
	d.entries[normalized] = now
	return DuplicateVerdict{}
}

func (d *DuplicateDetector) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, seenAt := range d.entries {
		if first || seenAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = seenAt
			first = false
		}
	}
	if !first {
		delete(d.entries, oldestKey)
	}
}

// similarity maps Levenshtein distance to [0, 1]; two empty strings are
// identical by definition.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

// levenshtein is the standard dynamic-programming edit distance with unit
// costs, using two rows.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j-1]+cost, // substitution
				curr[j-1]+1,    // insertion
				prev[j]+1,      // deletion
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
