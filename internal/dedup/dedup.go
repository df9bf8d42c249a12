// Package dedup holds the process-local guards against duplicate
// concurrent submissions, plus a small TTL read-through cache for hot
// lookups. Both are advisory: they do not survive a restart and do not
// coordinate across server instances.
package dedup

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

var ErrDuplicateInFlight = errors.New("duplicate request in flight")

// CreateKey builds the in-flight identifier for invoice creation.
// The millisecond timestamp is part of the key on purpose: only
// submissions stamped in the same millisecond collide.
func CreateKey(customerName, contactNumber string, submittedAtMillis int64) string {
	return "create:" + customerName + ":" + contactNumber + ":" + strconv.FormatInt(submittedAtMillis, 10)
}

// EditKey builds the in-flight identifier for invoice edits.
func EditKey(invoiceID string, submittedAtMillis int64) string {
	return "edit:" + invoiceID + ":" + strconv.FormatInt(submittedAtMillis, 10)
}

// Guard tracks identifiers of requests currently executing. It is
// constructed once and injected; there is no package-level instance.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// Acquire registers the identifier and returns a release func that must
// run on every exit path. A second Acquire with the same identifier
// before release fails with ErrDuplicateInFlight.
func (g *Guard) Acquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.inFlight[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInFlight, key)
	}
	g.inFlight[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, key)
			g.mu.Unlock()
		})
	}
	return release, nil
}

// Len reports the number of identifiers currently held.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inFlight)
}

type cacheEntry struct {
	value      any
	insertedAt time.Time
}

// LookupCache is a lazy-expiry read-through cache: a Get older than the
// TTL misses, and the stale entry is only dropped when touched.
type LookupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewLookupCache(ttl time.Duration) *LookupCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LookupCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *LookupCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *LookupCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, insertedAt: c.now()}
}
