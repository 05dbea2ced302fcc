package traverse

import (
	"math"
	"sync"

	"github.com/banshee-data/terrain.report/internal/gridmap"
	"github.com/banshee-data/terrain.report/internal/monitoring"
)

// footprintLayers are the layers cleared by ResetFootprintLayers: they are
// baked by footprint sweeps and can be rebuilt without a full recompute.
var footprintLayers = []string{
	gridmap.LayerFootprintTraversability,
	gridmap.LayerFootprintStep,
}

// TraversabilityStore owns the derived traversability map and the running
// tallies of traversable and non-traversable valid cells.
type TraversabilityStore struct {
	mu          sync.RWMutex
	m           *gridmap.Map
	initialized bool

	traversable    int
	notTraversable int
}

// NewTraversabilityStore returns an empty, uninitialized store.
func NewTraversabilityStore() *TraversabilityStore {
	return &TraversabilityStore{}
}

// Set validates and atomically replaces the stored map, rescanning all
// valid cells to recompute the counters. A cell counts as traversable iff
// its value is present and greater than zero.
func (s *TraversabilityStore) Set(m *gridmap.Map) error {
	if m == nil || !m.Has(gridmap.LayerTraversability) {
		return &ValidationError{Reason: "traversability map must carry layer \"traversability\""}
	}
	cp := m.Copy()
	trav, notTrav := countCells(cp)
	s.mu.Lock()
	s.m = cp
	s.initialized = true
	s.traversable = trav
	s.notTraversable = notTrav
	s.mu.Unlock()
	return nil
}

// Snapshot returns a deep copy of the stored map.
func (s *TraversabilityStore) Snapshot() (*gridmap.Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil, &NotInitializedError{Store: "traversability"}
	}
	return s.m.Copy(), nil
}

// Initialized reports whether at least one Set has succeeded.
func (s *TraversabilityStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ResetFootprintLayers clears only the footprint-derived layers, filling
// them with NaN. Base layers are preserved, so a fresh footprint sweep can
// run without a full recompute.
func (s *TraversabilityStore) ResetFootprintLayers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Store: "traversability"}
	}
	for _, layer := range footprintLayers {
		if !s.m.Has(layer) {
			continue
		}
		data := s.m.Data(layer)
		for i := range data {
			data[i] = math.NaN()
		}
	}
	return nil
}

// ReplaceFootprintLayers swaps in freshly baked footprint layers from a map
// sharing the store's geometry. Base layers are untouched.
func (s *TraversabilityStore) ReplaceFootprintLayers(baked *gridmap.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &NotInitializedError{Store: "traversability"}
	}
	if !s.m.SameGeometry(baked) {
		return &ValidationError{Reason: "baked footprint layers have mismatched geometry"}
	}
	for _, layer := range footprintLayers {
		if data := baked.Data(layer); data != nil {
			if err := s.m.AddData(layer, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// TraversableFraction returns traversable/(traversable+non-traversable)
// over valid cells, or 0 if the map has no valid cells.
func (s *TraversabilityStore) TraversableFraction() (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return 0, &NotInitializedError{Store: "traversability"}
	}
	total := s.traversable + s.notTraversable
	if total == 0 {
		return 0, nil
	}
	return float64(s.traversable) / float64(total), nil
}

// LogFraction reports the traversable fraction through the package logger.
func (s *TraversabilityStore) LogFraction() {
	frac, err := s.TraversableFraction()
	if err != nil {
		monitoring.Logf("traversable fraction unavailable: %v", err)
		return
	}
	monitoring.Logf("traversable fraction: %.3f", frac)
}

func countCells(m *gridmap.Map) (traversable, notTraversable int) {
	for _, v := range m.Data(gridmap.LayerTraversability) {
		if math.IsNaN(v) {
			continue
		}
		if v > 0 {
			traversable++
		} else {
			notTraversable++
		}
	}
	return traversable, notTraversable
}
