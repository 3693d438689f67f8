package tool

import (
	"sync"
	"time"
)

// SearchThrottle caps how often each search engine may be hit. Engines like
// Google Scholar block automated clients that query too fast, and one hot
// engine must not starve searches against the others, so the sliding window
// is tracked per engine ID rather than globally.
type SearchThrottle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time // for testing
}

// NewSearchThrottle allows limit searches per window against each engine.
func NewSearchThrottle(limit int, window time.Duration) *SearchThrottle {
	return &SearchThrottle{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether another search against the engine fits in the
// current window, and records it if so.
func (t *SearchThrottle) Allow(engine string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)

	// Trim hits that slid out of the window.
	hits := t.hits[engine]
	n := 0
	for _, at := range hits {
		if at.After(cutoff) {
			hits[n] = at
			n++
		}
	}
	hits = hits[:n]

	if len(hits) >= t.limit {
		t.hits[engine] = hits
		return false
	}

	t.hits[engine] = append(hits, now)
	return true
}

// Reset clears all recorded searches. Useful for testing.
func (t *SearchThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hits = make(map[string][]time.Time)
}
