// Package store holds ingested snapshots in memory and hands out
// snapshot-scoped lookups. It is the only component that creates or
// destroys snapshots; eviction cascades into the analysis cache through
// the Invalidator hook so no derived data outlives its snapshot.
package store

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/refind/internal/debug"
	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/hierarchy"
	"github.com/standardbeagle/refind/internal/types"
)

// seqMix spreads the ingest sequence across all 64 bits before it is
// XORed with the content hash, so consecutive ingestions of identical
// markup still get visibly distinct IDs.
const seqMix = 0x9e3779b97f4a7c15

// Invalidator receives eviction cascades. The analysis cache implements
// it; tests substitute their own.
type Invalidator interface {
	InvalidateSnapshot(id types.SnapshotID) int
}

// Store is a concurrency-safe in-memory snapshot registry.
type Store struct {
	mu        sync.RWMutex
	snapshots map[types.SnapshotID]*types.Snapshot
	seq       atomic.Uint64
	inval     Invalidator
}

// New creates an empty store. inval may be nil when no cache is wired.
func New(inval Invalidator) *Store {
	return &Store{
		snapshots: make(map[types.SnapshotID]*types.Snapshot),
		inval:     inval,
	}
}

// Ingest parses raw dump markup and registers it under a fresh ID.
// Every call produces a new snapshot: ingesting byte-identical markup
// twice yields two snapshots with equal ContentHash but distinct IDs,
// because capture time is part of a snapshot's identity.
func (s *Store) Ingest(raw []byte, device string) (types.SnapshotID, error) {
	nodes, err := hierarchy.Parse(raw)
	if err != nil {
		return "", err
	}

	hash := xxhash.Sum64(raw)
	seq := s.seq.Add(1)
	id := types.FormatSnapshotID(hash ^ (seq * seqMix))

	snap := &types.Snapshot{
		ID:          id,
		Device:      device,
		CapturedAt:  time.Now(),
		ContentHash: hash,
		RawSize:     len(raw),
		Nodes:       nodes,
	}

	s.mu.Lock()
	s.snapshots[id] = snap
	s.mu.Unlock()

	debug.LogStore("ingested %s: %d nodes, %d bytes\n", id, len(nodes), len(raw))
	return id, nil
}

// Get returns a snapshot by ID. The returned snapshot is shared and must
// be treated as immutable.
func (s *Store) Get(id types.SnapshotID) (*types.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("snapshot", string(id))
	}
	return snap, nil
}

// Evict removes a snapshot and cascades into the analysis cache.
// Returns whether the snapshot existed and how many cache entries the
// cascade dropped. Evicting an unknown ID is a no-op, not an error.
func (s *Store) Evict(id types.SnapshotID) (found bool, dropped int) {
	s.mu.Lock()
	_, found = s.snapshots[id]
	delete(s.snapshots, id)
	s.mu.Unlock()

	if found && s.inval != nil {
		dropped = s.inval.InvalidateSnapshot(id)
	}
	if found {
		debug.LogStore("evicted %s, dropped %d cache entries\n", id, dropped)
	}
	return found, dropped
}

// PathOf derives the path of a node in a snapshot.
func (s *Store) PathOf(id types.SnapshotID, index int) (types.Path, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	path := snap.PathTo(index)
	if path == nil {
		return nil, apperrors.NewNotFoundError("node", strconv.Itoa(index))
	}
	return path, nil
}

// NodeAt walks a path in a snapshot and returns the node it lands on.
func (s *Store) NodeAt(id types.SnapshotID, path types.Path) (*types.Node, error) {
	snap, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	idx, ok := snap.AtPath(path)
	if !ok {
		return nil, apperrors.NewNotFoundError("path", path.String())
	}
	return snap.At(idx), nil
}

// List returns the IDs of all live snapshots in no particular order.
func (s *Store) List() []types.SnapshotID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]types.SnapshotID, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live snapshots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
