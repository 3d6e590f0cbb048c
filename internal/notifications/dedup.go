package notifications

import (
	"sync"
	"time"

	"github.com/slotwave/slotwave/internal/pkg/clock"
)

// dedupCache is a process-local guard against duplicate reminder dispatch
// within one scheduler lifetime. The persisted per-appointment flag remains
// the source of truth; this cache is an optimization only.
//
// Entries expire after a TTL so the map stays bounded over long uptimes.
// Anything older than the widest firing band is useless anyway: by then the
// appointment has either the persisted flag set or has left the band.
type dedupCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	clock   clock.Clock
}

func newDedupCache(ttl time.Duration, clk clock.Clock) *dedupCache {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &dedupCache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		clock:   clk,
	}
}

// Seen reports whether the key was marked within the TTL.
func (c *dedupCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	insertedAt, ok := c.entries[key]
	return ok && c.clock.Now().Sub(insertedAt) <= c.ttl
}

// Mark records the key and sweeps out expired entries so the map cannot grow
// without bound.
func (c *dedupCache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, insertedAt := range c.entries {
		if now.Sub(insertedAt) > c.ttl {
			delete(c.entries, k)
		}
	}

	c.entries[key] = now
}

// Len returns the number of stored entries, including not yet swept ones.
func (c *dedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
