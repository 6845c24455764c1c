package ingest

import (
	"sync"
	"time"
)

// Deduper remembers dedupe keys for a bounded window so redelivered webhooks
// are acknowledged without being published twice.
type Deduper struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Seen marks key and reports whether it was already present within the
// window. Stale entries are pruned on the way through.
func (d *Deduper) Seen(key string) bool {
	now := time.Now()
	cutoff := now.Add(-d.window)

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, k)
		}
	}

	if at, ok := d.seen[key]; ok && at.After(cutoff) {
		return true
	}
	d.seen[key] = now
	return false
}
