package scoring

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// resultCache is a TTL cache for scoring results. Entries expire rather than
// evict by size: scoring traffic concentrates on a small set of machines and
// results go stale quickly anyway.
type resultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  *Result
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// cacheKey is stable for identical requests within a TTL bucket: truncating
// asOf to the TTL makes repeated "now" requests hit the same entry.
func cacheKey(machineID string, asOf time.Time, ttl time.Duration, horizons []string, anomaly, factors bool) string {
	var b strings.Builder
	b.WriteString(machineID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(asOf.Truncate(ttl).Unix(), 10))
	b.WriteByte('|')
	b.WriteString(strings.Join(horizons, ","))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(anomaly))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(factors))
	return b.String()
}

func (c *resultCache) get(key string) (*Result, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.result, true
}

func (c *resultCache) set(key string, result *Result) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{result: result, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// invalidate drops every cached result for one machine. Called when new
// readings arrive so fresh data is visible immediately instead of after TTL.
func (c *resultCache) invalidate(machineID string) {
	prefix := machineID + "|"
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}
