package cache

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/standardbeagle/refind/internal/types"
)

func sampleMetrics(confidence float64) types.SubtreeMetrics {
	return types.SubtreeMetrics{
		Fields:     []types.FieldKind{types.FieldText, types.FieldResourceID},
		Uniqueness: confidence,
		Stability:  confidence,
		Confidence: confidence,
		Suggested:  "standard",
		Nodes:      3,
	}
}

// TestAnalysisCache_Creation tests cache construction and defaults.
func TestAnalysisCache_Creation(t *testing.T) {
	c := New(0)
	if c == nil {
		t.Fatal("New returned nil")
	}

	stats := c.Stats()
	if stats.MaxEntries != DefaultMaxEntries {
		t.Errorf("Expected default max entries %d, got %d", DefaultMaxEntries, stats.MaxEntries)
	}
	if stats.Entries != 0 || stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}

	c = New(16)
	if got := c.Stats().MaxEntries; got != 16 {
		t.Errorf("Expected max entries 16, got %d", got)
	}
}

// TestAnalysisCache_BasicOperations tests put, get, and counters.
func TestAnalysisCache_BasicOperations(t *testing.T) {
	c := New(0)
	id := types.SnapshotID("snap_B")
	path := types.Path{0, 2}

	if _, ok := c.Get(id, path); ok {
		t.Error("Expected cache miss, got hit")
	}

	want := sampleMetrics(0.8)
	c.Put(id, path, want)

	got, ok := c.Get(id, path)
	if !ok {
		t.Fatal("Expected cache hit after Put")
	}
	if got.Confidence != want.Confidence || got.Nodes != want.Nodes {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("Expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.TotalRequests != 2 {
		t.Errorf("Expected hits=1 misses=1 total=2, got %+v", stats)
	}
}

// TestAnalysisCache_KeyIsolation tests that paths and snapshots do not
// collide in the key space.
func TestAnalysisCache_KeyIsolation(t *testing.T) {
	c := New(0)
	a := types.SnapshotID("snap_aaaa")
	b := types.SnapshotID("snap_bbbb")

	c.Put(a, types.Path{0, 1}, sampleMetrics(0.1))
	c.Put(a, types.Path{0, 12}, sampleMetrics(0.2))
	c.Put(b, types.Path{0, 1}, sampleMetrics(0.3))

	got, ok := c.Get(a, types.Path{0, 1})
	if !ok || got.Confidence != 0.1 {
		t.Errorf("Expected confidence 0.1 for first key, got %v (hit=%v)", got.Confidence, ok)
	}
	got, ok = c.Get(a, types.Path{0, 12})
	if !ok || got.Confidence != 0.2 {
		t.Errorf("Expected confidence 0.2 for second key, got %v (hit=%v)", got.Confidence, ok)
	}
	got, ok = c.Get(b, types.Path{0, 1})
	if !ok || got.Confidence != 0.3 {
		t.Errorf("Expected confidence 0.3 for third key, got %v (hit=%v)", got.Confidence, ok)
	}
}

// TestAnalysisCache_GetOrCompute tests compute-on-miss and reuse-on-hit.
func TestAnalysisCache_GetOrCompute(t *testing.T) {
	c := New(0)
	id := types.SnapshotID("snap_C")
	path := types.Path{1}

	computed := 0
	compute := func() (types.SubtreeMetrics, error) {
		computed++
		return sampleMetrics(0.5), nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute(id, path, compute)
		if err != nil {
			t.Fatalf("GetOrCompute failed: %v", err)
		}
		if got.Confidence != 0.5 {
			t.Errorf("Expected confidence 0.5, got %v", got.Confidence)
		}
	}

	if computed != 1 {
		t.Errorf("Expected compute to run once, ran %d times", computed)
	}

	stats := c.Stats()
	if stats.Misses != 1 || stats.Hits != 2 {
		t.Errorf("Expected misses=1 hits=2, got %+v", stats)
	}
}

// TestAnalysisCache_GetOrCompute_Error tests that failed computes are
// not cached.
func TestAnalysisCache_GetOrCompute_Error(t *testing.T) {
	c := New(0)
	id := types.SnapshotID("snap_D")
	path := types.Path{0}

	wantErr := errors.New("node missing")
	calls := 0
	_, err := c.GetOrCompute(id, path, func() (types.SubtreeMetrics, error) {
		calls++
		return types.SubtreeMetrics{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected compute error, got %v", err)
	}

	// The failure must not have produced an entry; the next call
	// computes again.
	_, err = c.GetOrCompute(id, path, func() (types.SubtreeMetrics, error) {
		calls++
		return sampleMetrics(0.9), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 compute calls, got %d", calls)
	}
	if got := c.Stats().Entries; got != 1 {
		t.Errorf("Expected 1 entry, got %d", got)
	}
}

// TestAnalysisCache_InvalidateSnapshot tests the eviction cascade stays
// scoped to one snapshot.
func TestAnalysisCache_InvalidateSnapshot(t *testing.T) {
	c := New(0)
	doomed := types.SnapshotID("snap_doom")
	kept := types.SnapshotID("snap_keep")

	for i := 0; i < 5; i++ {
		c.Put(doomed, types.Path{i}, sampleMetrics(0.4))
	}
	c.Put(kept, types.Path{0}, sampleMetrics(0.6))

	dropped := c.InvalidateSnapshot(doomed)
	if dropped != 5 {
		t.Errorf("Expected 5 dropped entries, got %d", dropped)
	}

	if _, ok := c.Get(doomed, types.Path{0}); ok {
		t.Error("Expected invalidated entry to be gone")
	}
	if _, ok := c.Get(kept, types.Path{0}); !ok {
		t.Error("Expected other snapshot's entry to survive")
	}

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", stats.Entries)
	}
	if stats.Evictions != 5 {
		t.Errorf("Expected 5 evictions, got %d", stats.Evictions)
	}

	// Invalidating again is a no-op.
	if dropped := c.InvalidateSnapshot(doomed); dropped != 0 {
		t.Errorf("Expected 0 dropped on repeat invalidation, got %d", dropped)
	}
}

// TestAnalysisCache_PinUnpin tests pin refcounting and the invalidate
// on the last unpin.
func TestAnalysisCache_PinUnpin(t *testing.T) {
	c := New(0)
	id := types.SnapshotID("snap_cc")
	c.Put(id, types.Path{0}, sampleMetrics(0.7))
	c.Put(id, types.Path{0, 1}, sampleMetrics(0.7))

	c.Pin(id)
	c.Pin(id)

	if dropped := c.Unpin(id); dropped != 0 {
		t.Errorf("Expected first unpin to keep entries, dropped %d", dropped)
	}
	if _, ok := c.Get(id, types.Path{0}); !ok {
		t.Error("Expected entry to survive while still pinned")
	}

	if dropped := c.Unpin(id); dropped != 2 {
		t.Errorf("Expected last unpin to drop 2 entries, dropped %d", dropped)
	}
	if _, ok := c.Get(id, types.Path{0}); ok {
		t.Error("Expected entry to be gone after last unpin")
	}

	// Unpin without a pin must not invalidate anything.
	c.Put(id, types.Path{2}, sampleMetrics(0.7))
	if dropped := c.Unpin(id); dropped != 0 {
		t.Errorf("Expected unbalanced unpin to be a no-op, dropped %d", dropped)
	}
	if _, ok := c.Get(id, types.Path{2}); !ok {
		t.Error("Expected entry to survive unbalanced unpin")
	}
}

// TestAnalysisCache_Eviction tests the oldest entry is dropped when the
// bound is exceeded.
func TestAnalysisCache_Eviction(t *testing.T) {
	c := New(3)
	id := types.SnapshotID("snap_dd")

	for i := 0; i < 4; i++ {
		c.Put(id, types.Path{i}, sampleMetrics(float64(i)))
		time.Sleep(time.Millisecond) // distinct insertion stamps
	}

	stats := c.Stats()
	if stats.Entries != 3 {
		t.Errorf("Expected 3 entries after eviction, got %d", stats.Entries)
	}
	if stats.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", stats.Evictions)
	}

	if _, ok := c.Get(id, types.Path{0}); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	for i := 1; i < 4; i++ {
		if _, ok := c.Get(id, types.Path{i}); !ok {
			t.Errorf("Expected entry %d to survive", i)
		}
	}
}

// TestAnalysisCache_Clear tests the full reset.
func TestAnalysisCache_Clear(t *testing.T) {
	c := New(0)
	id := types.SnapshotID("snap_ee")
	c.Put(id, types.Path{0}, sampleMetrics(0.5))
	c.Get(id, types.Path{0})
	c.Get(id, types.Path{9})

	c.Clear()

	stats := c.Stats()
	if stats.Entries != 0 || stats.Hits != 0 || stats.Misses != 0 || stats.TotalRequests != 0 {
		t.Errorf("Expected zeroed stats after Clear, got %+v", stats)
	}
	if _, ok := c.Get(id, types.Path{0}); ok {
		t.Error("Expected entries to be gone after Clear")
	}
}

// TestAnalysisCache_HealthStatus tests the hit rate bands.
func TestAnalysisCache_HealthStatus(t *testing.T) {
	cases := []struct {
		hitRate float64
		want    string
	}{
		{1.0, "excellent"},
		{0.95, "excellent"},
		{0.90, "good"},
		{0.85, "good"},
		{0.80, "fair"},
		{0.70, "fair"},
		{0.50, "poor"},
		{0.0, "poor"},
	}
	for _, tc := range cases {
		if got := getHealthStatus(tc.hitRate); got != tc.want {
			t.Errorf("getHealthStatus(%v) = %q, want %q", tc.hitRate, got, tc.want)
		}
	}

	// A cache that has only ever missed reports poor.
	c := New(0)
	c.Get(types.SnapshotID("snap_ff"), types.Path{0})
	if got := c.HealthStatus(); got != "poor" {
		t.Errorf("Expected poor health on all misses, got %q", got)
	}
}

// TestAnalysisCache_ConcurrentAccess tests correctness under concurrent
// GetOrCompute traffic.
func TestAnalysisCache_ConcurrentAccess(t *testing.T) {
	c := New(0)
	id := types.SnapshotID("snap_c0c")

	numGoroutines := runtime.NumCPU() * 2
	operationsPerGoroutine := 500
	uniquePaths := 20

	var computes int64
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				path := types.Path{goroutineID % 4, j % uniquePaths}
				got, err := c.GetOrCompute(id, path, func() (types.SubtreeMetrics, error) {
					atomic.AddInt64(&computes, 1)
					return sampleMetrics(float64(path[1]) / 100), nil
				})
				if err != nil {
					t.Errorf("GetOrCompute failed: %v", err)
					return
				}
				if want := float64(path[1]) / 100; got.Confidence != want {
					t.Errorf("Expected confidence %v for %v, got %v", want, path, got.Confidence)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	maxKeys := int64(4 * uniquePaths)
	if stats.Entries > maxKeys {
		t.Errorf("Expected at most %d entries, got %d", maxKeys, stats.Entries)
	}

	wantTotal := int64(numGoroutines * operationsPerGoroutine)
	if stats.TotalRequests != wantTotal {
		t.Errorf("Expected %d total requests, got %d", wantTotal, stats.TotalRequests)
	}

	t.Logf("Concurrent test results:")
	t.Logf("  Computes: %d", atomic.LoadInt64(&computes))
	t.Logf("  Hit rate: %.2f%%", stats.HitRate*100)
	t.Logf("  Entries: %d", stats.Entries)

	// Nearly every request after warmup should hit.
	if stats.HitRate < 0.5 {
		t.Errorf("Hit rate too low: %.2f%%", stats.HitRate*100)
	}
}

// TestAnalysisCache_ConcurrentInvalidation tests that invalidation racing
// with lookups never corrupts the entry count.
func TestAnalysisCache_ConcurrentInvalidation(t *testing.T) {
	c := New(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := types.FormatSnapshotID(uint64(n))
			for j := 0; j < 50; j++ {
				c.Put(id, types.Path{j}, sampleMetrics(0.5))
			}
			c.InvalidateSnapshot(id)
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.Entries != 0 {
		t.Errorf("Expected 0 entries after invalidating every snapshot, got %d", stats.Entries)
	}
}
