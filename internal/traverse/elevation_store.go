package traverse

import (
	"sync"

	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// ElevationStore owns the raw elevation grid. The map is replaced wholesale
// and handed out as deep copies; it is never incrementally mutated, so a
// snapshot can outlive any number of subsequent replaces.
type ElevationStore struct {
	mu          sync.RWMutex
	m           *gridmap.Map
	initialized bool
}

// NewElevationStore returns an empty, uninitialized store.
func NewElevationStore() *ElevationStore {
	return &ElevationStore{}
}

// Set validates and atomically replaces the stored elevation map.
// The input is deep-copied; the caller keeps ownership of m.
func (s *ElevationStore) Set(m *gridmap.Map) error {
	if m == nil || !m.Has(gridmap.LayerElevation) {
		return &ValidationError{Reason: "elevation map must carry layer \"elevation\""}
	}
	cp := m.Copy()
	s.mu.Lock()
	s.m = cp
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// Snapshot returns a deep copy of the stored map. The lock is held only
// for the copy, never across derivation work.
func (s *ElevationStore) Snapshot() (*gridmap.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, &NotInitializedError{Store: "elevation"}
	}
	return s.m.Copy(), nil
}

// Initialized reports whether at least one Set has succeeded.
func (s *ElevationStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}
