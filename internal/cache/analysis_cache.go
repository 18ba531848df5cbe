// Package cache keeps computed subtree metrics keyed by snapshot and
// path. Snapshots are immutable, so entries never go stale on their own;
// the only invalidation is the cascade a snapshot eviction triggers.
// There is no TTL anywhere; correctness comes entirely from the
// snapshot-scoped keys.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/refind/internal/debug"
	"github.com/standardbeagle/refind/internal/types"
	"github.com/standardbeagle/refind/pkg/nodepath"
)

// DefaultMaxEntries bounds the cache before oldest-entry eviction kicks
// in. Snapshot trees run a few hundred nodes, so this covers several
// live snapshots fully analyzed.
const DefaultMaxEntries = 4096

// entry is one cached metrics value with bookkeeping for eviction.
type entry struct {
	metrics  types.SubtreeMetrics
	cachedAt int64 // unix nanos
	hits     int64
}

// AnalysisCache is a concurrency-safe metrics cache. Concurrent
// getOrCompute calls for the same key may both compute; last write wins,
// which is harmless because computation is deterministic.
type AnalysisCache struct {
	entries    sync.Map // key string -> *entry
	maxEntries int64

	pinMu sync.Mutex
	pins  map[types.SnapshotID]int

	// Statistics (atomic access)
	hits          int64
	misses        int64
	evictions     int64
	totalRequests int64
	entryCount    int64

	createdAt time.Time
}

// New creates a cache. maxEntries <= 0 selects DefaultMaxEntries.
func New(maxEntries int) *AnalysisCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &AnalysisCache{
		maxEntries: int64(maxEntries),
		pins:       make(map[types.SnapshotID]int),
		createdAt:  time.Now(),
	}
}

// key builds the composite cache key. The "|" separator cannot occur in
// either component, so keys never collide across snapshots.
func key(id types.SnapshotID, path types.Path) string {
	return string(id) + "|" + nodepath.Format(path)
}

// GetOrCompute returns the cached metrics for (id, path) or runs compute
// and caches its result. Compute errors are returned as-is and nothing
// is cached for them.
func (c *AnalysisCache) GetOrCompute(id types.SnapshotID, path types.Path, compute func() (types.SubtreeMetrics, error)) (types.SubtreeMetrics, error) {
	atomic.AddInt64(&c.totalRequests, 1)
	k := key(id, path)

	if v, ok := c.entries.Load(k); ok {
		e := v.(*entry)
		atomic.AddInt64(&e.hits, 1)
		atomic.AddInt64(&c.hits, 1)
		return e.metrics, nil
	}

	atomic.AddInt64(&c.misses, 1)
	metrics, err := compute()
	if err != nil {
		return types.SubtreeMetrics{}, err
	}
	c.store(k, metrics)
	return metrics, nil
}

// Get returns the cached metrics for (id, path) without computing.
func (c *AnalysisCache) Get(id types.SnapshotID, path types.Path) (types.SubtreeMetrics, bool) {
	atomic.AddInt64(&c.totalRequests, 1)
	if v, ok := c.entries.Load(key(id, path)); ok {
		e := v.(*entry)
		atomic.AddInt64(&e.hits, 1)
		atomic.AddInt64(&c.hits, 1)
		return e.metrics, true
	}
	atomic.AddInt64(&c.misses, 1)
	return types.SubtreeMetrics{}, false
}

// Put stores metrics unconditionally (last write wins).
func (c *AnalysisCache) Put(id types.SnapshotID, path types.Path, metrics types.SubtreeMetrics) {
	c.store(key(id, path), metrics)
}

func (c *AnalysisCache) store(k string, metrics types.SubtreeMetrics) {
	e := &entry{metrics: metrics, cachedAt: time.Now().UnixNano()}
	if _, loaded := c.entries.LoadOrStore(k, e); loaded {
		c.entries.Store(k, e)
		return
	}
	if atomic.AddInt64(&c.entryCount, 1) > c.maxEntries {
		c.evictOldest()
	}
}

// evictOldest drops the entry with the smallest cachedAt. Linear scan,
// same tradeoff as elsewhere: eviction is rare and the map is modest.
func (c *AnalysisCache) evictOldest() {
	var oldestKey string
	var oldestTime int64 = 1<<63 - 1

	c.entries.Range(func(k, v interface{}) bool {
		e := v.(*entry)
		if e.cachedAt < oldestTime {
			oldestTime = e.cachedAt
			oldestKey = k.(string)
		}
		return true
	})

	if oldestKey != "" {
		if _, ok := c.entries.LoadAndDelete(oldestKey); ok {
			atomic.AddInt64(&c.entryCount, -1)
			atomic.AddInt64(&c.evictions, 1)
		}
	}
}

// InvalidateSnapshot drops every entry belonging to one snapshot and
// returns how many were dropped. This is the eviction cascade the store
// triggers; nothing else removes entries by key.
func (c *AnalysisCache) InvalidateSnapshot(id types.SnapshotID) int {
	prefix := string(id) + "|"
	dropped := 0

	c.entries.Range(func(k, v interface{}) bool {
		ks := k.(string)
		if strings.HasPrefix(ks, prefix) {
			if _, ok := c.entries.LoadAndDelete(ks); ok {
				dropped++
			}
		}
		return true
	})

	if dropped > 0 {
		atomic.AddInt64(&c.entryCount, int64(-dropped))
		atomic.AddInt64(&c.evictions, int64(dropped))
		debug.LogCache("invalidated %d entries for %s\n", dropped, id)
	}
	return dropped
}

// Pin marks a snapshot's entries as in use so batch callers can hold
// them across many lookups. Pins nest.
func (c *AnalysisCache) Pin(id types.SnapshotID) {
	c.pinMu.Lock()
	c.pins[id]++
	c.pinMu.Unlock()
}

// Unpin releases one pin. When the last pin is released the snapshot's
// entries are invalidated and the dropped count returned. Unpinning a
// snapshot that was never pinned is a no-op.
func (c *AnalysisCache) Unpin(id types.SnapshotID) int {
	c.pinMu.Lock()
	n, ok := c.pins[id]
	if !ok {
		c.pinMu.Unlock()
		return 0
	}
	n--
	if n > 0 {
		c.pins[id] = n
		c.pinMu.Unlock()
		return 0
	}
	delete(c.pins, id)
	c.pinMu.Unlock()
	return c.InvalidateSnapshot(id)
}

// Clear drops everything and resets the statistics.
func (c *AnalysisCache) Clear() {
	c.entries.Range(func(k, v interface{}) bool {
		c.entries.Delete(k)
		return true
	})
	atomic.StoreInt64(&c.entryCount, 0)
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
	atomic.StoreInt64(&c.totalRequests, 0)
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries       int64         `json:"entries"`
	MaxEntries    int64         `json:"max_entries"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Evictions     int64         `json:"evictions"`
	TotalRequests int64         `json:"total_requests"`
	HitRate       float64       `json:"hit_rate"`
	HealthStatus  string        `json:"health_status"`
	Uptime        time.Duration `json:"uptime_ns"`
}

// Stats returns current statistics.
func (c *AnalysisCache) Stats() Stats {
	hits := atomic.LoadInt64(&c.hits)
	total := atomic.LoadInt64(&c.totalRequests)

	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:       atomic.LoadInt64(&c.entryCount),
		MaxEntries:    c.maxEntries,
		Hits:          hits,
		Misses:        atomic.LoadInt64(&c.misses),
		Evictions:     atomic.LoadInt64(&c.evictions),
		TotalRequests: total,
		HitRate:       hitRate,
		HealthStatus:  getHealthStatus(hitRate),
		Uptime:        time.Since(c.createdAt),
	}
}

// HealthStatus grades the current hit rate.
func (c *AnalysisCache) HealthStatus() string {
	return getHealthStatus(c.Stats().HitRate)
}

// getHealthStatus converts hit rate to a human-readable health status
func getHealthStatus(hitRate float64) string {
	switch {
	case hitRate >= 0.95:
		return "excellent"
	case hitRate >= 0.85:
		return "good"
	case hitRate >= 0.70:
		return "fair"
	default:
		return "poor"
	}
}
