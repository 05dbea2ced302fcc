package traverse

import (
	"math"
	"time"

	"github.com/banshee-data/terrain.report/internal/config"
	"github.com/banshee-data/terrain.report/internal/gridmap"
	"github.com/banshee-data/terrain.report/internal/monitoring"
)

// Manager wires the stores, derivation chain, footprint evaluator and path
// checker into the engine surface the daemon exposes. Lock discipline: no
// method ever holds both store locks. Compute copies the elevation snapshot
// under the elevation lock, runs the chain on the private copy with no lock
// held, then takes the traversability lock only for the replace, so path
// queries are never blocked for the duration of a derivation.
type Manager struct {
	Elevation      *ElevationStore
	Traversability *TraversabilityStore

	chain   *Chain
	eval    *Evaluator
	checker *Checker
	params  Params
	frameID string
}

// NewManager builds a manager from configuration. The chain is built from
// cfg.Chain; an empty chain is allowed (fusion then writes the default
// score everywhere).
func NewManager(cfg *config.Config) (*Manager, error) {
	params := Params{
		MaxStepHeight:     *cfg.MaxStepHeightM,
		MaxSlopeRad:       *cfg.MaxSlopeDegrees * math.Pi / 180,
		MaxInclinationRad: *cfg.MaxInclinationDegrees * math.Pi / 180,
		StepWindowCells:   *cfg.StepWindowCells,
		SlopeWindowCells:  *cfg.SlopeWindowCells,
		MinFeatureCells:   *cfg.MinFeatureCells,
		SampleSpacing:     *cfg.SampleSpacingM,
	}
	chain, err := NewChain(cfg.Chain, *cfg.TraversabilityDefault, nil)
	if err != nil {
		return nil, err
	}

	var fp gridmap.Polygon
	for _, v := range cfg.FootprintVertices {
		fp.Vertices = append(fp.Vertices, gridmap.Position{X: v.X, Y: v.Y})
	}
	eval := &Evaluator{
		Footprint:   fp,
		Radius:      *cfg.FootprintRadius,
		InnerRadius: *cfg.FootprintInnerRadius,
		Default:     *cfg.TraversabilityDefault,
		Params:      params,
	}
	return &Manager{
		Elevation:      NewElevationStore(),
		Traversability: NewTraversabilityStore(),
		chain:          chain,
		eval:           eval,
		checker:        &Checker{Eval: eval, Params: params},
		params:         params,
		frameID:        *cfg.MapFrameID,
	}, nil
}

// SetElevationMap replaces the stored elevation grid.
func (mg *Manager) SetElevationMap(m *gridmap.Map) error {
	return mg.Elevation.Set(m)
}

// SetTraversabilityMap replaces the derived map directly, bypassing the
// chain, e.g. when restoring a snapshot from storage.
func (mg *Manager) SetTraversabilityMap(m *gridmap.Map) error {
	return mg.Traversability.Set(m)
}

// TraversabilityMap returns a snapshot of the derived map.
func (mg *Manager) TraversabilityMap() (*gridmap.Map, error) {
	return mg.Traversability.Snapshot()
}

// Initialized reports whether the derived map can be queried.
func (mg *Manager) Initialized() bool {
	return mg.Traversability.Initialized()
}

// Compute runs the derivation chain over the current elevation map and
// replaces the traversability map. On pipeline failure the previously
// derived map is left untouched and keeps serving queries.
func (mg *Manager) Compute() error {
	elev, err := mg.Elevation.Snapshot()
	if err != nil {
		return err
	}
	start := time.Now()
	derived, err := mg.chain.Compute(elev)
	if err != nil {
		return err
	}
	if err := mg.Traversability.Set(derived); err != nil {
		return err
	}
	monitoring.Logf("traversability recompute: %dx%d cells in %s", derived.Rows, derived.Cols, time.Since(start).Round(time.Millisecond))
	mg.Traversability.LogFraction()
	return nil
}

// CheckPath evaluates a waypoint path against the current derived map.
func (mg *Manager) CheckPath(path Path) (Result, error) {
	snap, err := mg.Traversability.Snapshot()
	if err != nil {
		return Result{}, err
	}
	return mg.checker.Check(snap, path)
}

// Evaluate scores a single footprint placement at the given pose.
func (mg *Manager) Evaluate(pose Pose, fp Footprint) (Result, error) {
	snap, err := mg.Traversability.Snapshot()
	if err != nil {
		return Result{}, err
	}
	score, fully, err := mg.checker.evaluateAt(snap, fp, pose)
	if err != nil {
		return Result{}, err
	}
	return Result{Traversable: fully, Traversability: score}, nil
}

// TraversabilityFootprint bakes the polygon footprint layers over the whole
// map (axis-aligned plus yaw orientation, min-combined) and installs them.
// The bake runs on a snapshot; only the install takes the store lock.
func (mg *Manager) TraversabilityFootprint(yaw float64) error {
	snap, err := mg.Traversability.Snapshot()
	if err != nil {
		return err
	}
	baked, err := mg.eval.BakeFootprintYaw(snap, yaw)
	if err != nil {
		return err
	}
	return mg.Traversability.ReplaceFootprintLayers(baked)
}

// TraversabilityFootprintCircle is the circular analogue for a disc of the
// given radius inflated by offset.
func (mg *Manager) TraversabilityFootprintCircle(radius, offset float64) error {
	snap, err := mg.Traversability.Snapshot()
	if err != nil {
		return err
	}
	baked, err := mg.eval.BakeFootprintCircle(snap, radius, offset)
	if err != nil {
		return err
	}
	return mg.Traversability.ReplaceFootprintLayers(baked)
}

// ResetFootprintLayers clears the footprint-derived layers so a fresh bake
// can run without a full recompute.
func (mg *Manager) ResetFootprintLayers() error {
	return mg.Traversability.ResetFootprintLayers()
}

// ReloadFilters swaps the derivation chain for one built from cfgs. The
// swap is all-or-nothing; an in-flight Compute finishes with the chain it
// started with.
func (mg *Manager) ReloadFilters(cfgs []config.StageConfig) error {
	if err := mg.chain.Reload(cfgs); err != nil {
		return err
	}
	monitoring.Logf("filter chain reloaded: %v", mg.chain.StageNames())
	return nil
}

// TraversableFraction returns the fraction of valid cells that are
// traversable.
func (mg *Manager) TraversableFraction() (float64, error) {
	return mg.Traversability.TraversableFraction()
}

// FootprintBoundary returns the footprint polygon placed at a pose, for
// diagnostics and visualisation.
func (mg *Manager) FootprintBoundary(pose Pose) gridmap.Polygon {
	return mg.eval.Footprint.Transformed(gridmap.Position{X: pose.X, Y: pose.Y}, pose.Yaw)
}
