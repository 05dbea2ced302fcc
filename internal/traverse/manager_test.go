package traverse

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/banshee-data/terrain.report/internal/config"
	"github.com/banshee-data/terrain.report/internal/gridmap"
	"github.com/banshee-data/terrain.report/internal/monitoring"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = orig })
	mg, err := NewManager(config.Default())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mg
}

func TestManagerComputeAndQuery(t *testing.T) {
	mg := newTestManager(t)
	if mg.Initialized() {
		t.Fatalf("manager initialized before any elevation set")
	}
	if err := mg.Compute(); err == nil {
		t.Fatalf("Compute before elevation set should fail")
	}
	if err := mg.SetElevationMap(flatElevationMap(t, 5, 5, 0)); err != nil {
		t.Fatalf("SetElevationMap: %v", err)
	}
	if err := mg.Compute(); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	frac, err := mg.TraversableFraction()
	if err != nil {
		t.Fatalf("TraversableFraction: %v", err)
	}
	if frac != 1.0 {
		t.Fatalf("flat terrain fraction %v, want 1.0", frac)
	}
	res, err := mg.CheckPath(Path{
		Poses:     []Pose{{X: -1, Y: 0}, {X: 1, Y: 0}},
		Footprint: Footprint{Radius: 0.5},
	})
	if err != nil {
		t.Fatalf("CheckPath: %v", err)
	}
	if !res.Traversable || res.Traversability != 1.0 {
		t.Fatalf("flat path: %+v", res)
	}
}

func TestManagerEvaluate(t *testing.T) {
	mg := newTestManager(t)

	fp := Footprint{Radius: 1}
	if _, err := mg.Evaluate(Pose{}, fp); err == nil {
		t.Fatal("Evaluate before first compute should fail")
	}

	if err := mg.SetElevationMap(flatElevationMap(t, 5, 5, 0)); err != nil {
		t.Fatalf("SetElevationMap: %v", err)
	}
	if err := mg.Compute(); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	res, err := mg.Evaluate(Pose{X: 0, Y: 0}, fp)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Traversable || res.Traversability != 1.0 {
		t.Fatalf("centred disc on flat terrain: %+v", res)
	}

	// Fully outside the map covers no cell: default score, not traversable.
	res, err = mg.Evaluate(Pose{X: 100, Y: 100}, Footprint{Radius: 0.5})
	if err != nil {
		t.Fatalf("Evaluate off-map: %v", err)
	}
	if res.Traversable || res.Traversability != 0.5 {
		t.Fatalf("off-map placement: %+v", res)
	}
}

func TestComputeLogsFraction(t *testing.T) {
	var logged []string
	orig := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(orig) })

	mg, err := NewManager(config.Default())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mg.SetElevationMap(flatElevationMap(t, 5, 5, 0)); err != nil {
		t.Fatalf("SetElevationMap: %v", err)
	}
	if err := mg.Compute(); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	found := false
	for _, line := range logged {
		if line == "traversable fraction: 1.000" {
			found = true
		}
	}
	if !found {
		t.Fatalf("recompute did not log the traversable fraction, got %q", logged)
	}
}

func TestManagerCheckPathBeforeCompute(t *testing.T) {
	mg := newTestManager(t)
	_, err := mg.CheckPath(Path{Poses: []Pose{{X: 0, Y: 0}}, Footprint: Footprint{Radius: 0.5}})
	var nerr *NotInitializedError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotInitializedError, got %v", err)
	}
}

func TestManagerDirectTraversabilityReplace(t *testing.T) {
	mg := newTestManager(t)
	m, _ := gridmap.NewMap("map", 1.0, 3, 3, 0, 0)
	m.Add(gridmap.LayerTraversability, 1)
	m.Add(gridmap.LayerElevation, 0)
	if err := mg.SetTraversabilityMap(m); err != nil {
		t.Fatalf("SetTraversabilityMap: %v", err)
	}
	if !mg.Initialized() {
		t.Fatalf("direct replace should initialize the store")
	}
	frac, _ := mg.TraversableFraction()
	if frac != 1.0 {
		t.Fatalf("fraction %v, want 1.0", frac)
	}
}

func TestManagerReloadFiltersKeepsMapOnFailure(t *testing.T) {
	mg := newTestManager(t)
	if err := mg.SetElevationMap(flatElevationMap(t, 5, 5, 0)); err != nil {
		t.Fatalf("SetElevationMap: %v", err)
	}
	if err := mg.Compute(); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	var perr *PipelineError
	if err := mg.ReloadFilters([]config.StageConfig{{Type: "nonsense"}}); !errors.As(err, &perr) {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	// The previous chain and the previous map both keep serving.
	if err := mg.Compute(); err != nil {
		t.Fatalf("Compute after failed reload: %v", err)
	}
	if _, err := mg.TraversabilityMap(); err != nil {
		t.Fatalf("map unavailable after failed reload: %v", err)
	}
}

func TestManagerFootprintBakeLifecycle(t *testing.T) {
	mg := newTestManager(t)
	if err := mg.SetElevationMap(flatElevationMap(t, 5, 5, 0)); err != nil {
		t.Fatalf("SetElevationMap: %v", err)
	}
	if err := mg.Compute(); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if err := mg.TraversabilityFootprint(0.5); err != nil {
		t.Fatalf("TraversabilityFootprint: %v", err)
	}
	snap, _ := mg.TraversabilityMap()
	if got := snap.At(gridmap.LayerFootprintTraversability, gridmap.Index{Row: 2, Col: 2}); got != 1.0 {
		t.Fatalf("baked center score %v, want 1.0", got)
	}
	if err := mg.ResetFootprintLayers(); err != nil {
		t.Fatalf("ResetFootprintLayers: %v", err)
	}
	if err := mg.TraversabilityFootprintCircle(0.5, 0.25); err != nil {
		t.Fatalf("TraversabilityFootprintCircle: %v", err)
	}
}

// Recomputes and path queries may interleave freely: queries always see
// either the previous or the new map, never a partial one.
func TestManagerConcurrentComputeAndQuery(t *testing.T) {
	mg := newTestManager(t)
	if err := mg.SetElevationMap(flatElevationMap(t, 9, 9, 0)); err != nil {
		t.Fatalf("SetElevationMap: %v", err)
	}
	if err := mg.Compute(); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	path := Path{
		Poses:     []Pose{{X: -2, Y: 0}, {X: 2, Y: 0}},
		Footprint: Footprint{Radius: 0.5},
	}
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				res, err := mg.CheckPath(path)
				if err != nil {
					t.Errorf("CheckPath: %v", err)
					return
				}
				if !res.Traversable || res.Traversability != 1.0 {
					t.Errorf("query saw inconsistent map: %+v", res)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if err := mg.Compute(); err != nil {
				t.Errorf("Compute: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestManagerFootprintBoundary(t *testing.T) {
	mg := newTestManager(t)
	poly := mg.FootprintBoundary(Pose{X: 1, Y: 2})
	if len(poly.Vertices) != 4 {
		t.Fatalf("boundary has %d vertices, want 4", len(poly.Vertices))
	}
	if poly.Vertices[0].X != 1.5 || poly.Vertices[0].Y != 1.5 {
		t.Fatalf("boundary vertex %+v, want translated footprint corner", poly.Vertices[0])
	}
}
