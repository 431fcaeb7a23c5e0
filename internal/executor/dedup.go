package executor

import (
	"sync"
	"time"
)

// Dedup suppresses re-submitting a pair while the book is unchanged. Keys
// combine the window ID with both ask prices; a repeated evaluation of the
// same prices within the TTL is a duplicate. Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // pair key -> last submit time
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given time-to-live window.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether the key was marked within the TTL window.
// Expired entries are evicted on the way through.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if last, ok := d.seen[key]; ok {
		if now.Sub(last) < d.ttl {
			return true
		}
		delete(d.seen, key)
	}
	return false
}

// Mark records a submission for the key.
func (d *Dedup) Mark(key string) {
	d.mu.Lock()
	d.seen[key] = time.Now()
	d.mu.Unlock()
}

// Cleanup removes entries that have expired beyond the TTL. Called
// periodically to bound memory across many windows.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
