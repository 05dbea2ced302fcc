package traverse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/terrain.report/internal/config"
	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// The built-in stages. Each derives one hazard sub-layer from elevation,
// scoring cells in [0,1] where 1 is fully safe. The chain orchestrates them
// through the Stage contract; external stages plug in the same way via
// RegisterStage.

type stageBuilder func(name string, params map[string]float64) (Stage, error)

var stageRegistry = map[string]stageBuilder{
	"slope":       newSlopeStage,
	"step":        newStepStage,
	"roughness":   newRoughnessStage,
	"robot_slope": newRobotSlopeStage,
}

// RegisterStage adds a stage type to the registry. Intended for external
// stage implementations; built-ins register themselves.
func RegisterStage(typ string, build func(name string, params map[string]float64) (Stage, error)) {
	stageRegistry[typ] = build
}

// BuildStages instantiates the configured stage sequence. Any unknown type
// or bad parameter fails the whole build, leaving the caller's previous
// chain in place.
func BuildStages(cfgs []config.StageConfig) ([]Stage, error) {
	stages := make([]Stage, 0, len(cfgs))
	for i, sc := range cfgs {
		build, ok := stageRegistry[sc.Type]
		if !ok {
			return nil, fmt.Errorf("unknown stage type %q at chain[%d]", sc.Type, i)
		}
		name := sc.Name
		if name == "" {
			name = sc.Type
		}
		st, err := build(name, sc.Params)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// slopeStage scores cells by local surface gradient: 1 at flat terrain,
// 0 at or beyond the critical slope.
type slopeStage struct {
	name     string
	critical float64 // radians
	window   int     // cells
}

func newSlopeStage(name string, params map[string]float64) (Stage, error) {
	critical := paramOr(params, "critical_slope_degrees", 30) * math.Pi / 180
	if critical <= 0 {
		return nil, fmt.Errorf("critical_slope_degrees must be positive")
	}
	return &slopeStage{
		name:     name,
		critical: critical,
		window:   int(paramOr(params, "window_cells", 1)),
	}, nil
}

func (s *slopeStage) Name() string { return s.name }

func (s *slopeStage) Apply(m *gridmap.Map) error {
	m.Add(gridmap.LayerSlope, math.NaN())
	forEachValidCell(m, func(idx gridmap.Index) {
		xs, ys, zs := windowSamples(m, idx, s.window)
		slope, ok := planeSlope(xs, ys, zs)
		if !ok {
			return
		}
		m.SetAt(gridmap.LayerSlope, idx, clamp01(1-slope/s.critical))
	})
	return nil
}

// stepStage scores cells by the largest elevation discontinuity to any
// neighbour in the window: 1 with no discontinuity, 0 at or beyond the
// critical step height.
type stepStage struct {
	name     string
	critical float64 // metres
	window   int
}

func newStepStage(name string, params map[string]float64) (Stage, error) {
	critical := paramOr(params, "critical_step_height_m", 0.1)
	if critical <= 0 {
		return nil, fmt.Errorf("critical_step_height_m must be positive")
	}
	return &stepStage{
		name:     name,
		critical: critical,
		window:   int(paramOr(params, "window_cells", 1)),
	}, nil
}

func (s *stepStage) Name() string { return s.name }

func (s *stepStage) Apply(m *gridmap.Map) error {
	m.Add(gridmap.LayerStep, math.NaN())
	forEachValidCell(m, func(idx gridmap.Index) {
		center := m.At(gridmap.LayerElevation, idx)
		maxDiff := 0.0
		for row := idx.Row - s.window; row <= idx.Row+s.window; row++ {
			for col := idx.Col - s.window; col <= idx.Col+s.window; col++ {
				v := m.At(gridmap.LayerElevation, gridmap.Index{Row: row, Col: col})
				if math.IsNaN(v) {
					continue
				}
				if d := math.Abs(v - center); d > maxDiff {
					maxDiff = d
				}
			}
		}
		m.SetAt(gridmap.LayerStep, idx, clamp01(1-maxDiff/s.critical))
	})
	return nil
}

// roughnessStage scores cells by the standard deviation of plane-fit
// residuals in the window: 1 for smooth terrain, 0 at or beyond the
// critical roughness.
type roughnessStage struct {
	name     string
	critical float64 // metres
	window   int
}

func newRoughnessStage(name string, params map[string]float64) (Stage, error) {
	critical := paramOr(params, "critical_roughness_m", 0.1)
	if critical <= 0 {
		return nil, fmt.Errorf("critical_roughness_m must be positive")
	}
	return &roughnessStage{
		name:     name,
		critical: critical,
		window:   int(paramOr(params, "window_cells", 1)),
	}, nil
}

func (s *roughnessStage) Name() string { return s.name }

func (s *roughnessStage) Apply(m *gridmap.Map) error {
	m.Add(gridmap.LayerRoughness, math.NaN())
	forEachValidCell(m, func(idx gridmap.Index) {
		xs, ys, zs := windowSamples(m, idx, s.window)
		_, _, residuals, ok := fitPlane(xs, ys, zs)
		if !ok {
			return
		}
		rough := stat.StdDev(residuals, nil)
		if math.IsNaN(rough) {
			rough = 0
		}
		m.SetAt(gridmap.LayerRoughness, idx, clamp01(1-rough/s.critical))
	})
	return nil
}

// robotSlopeStage scores the coarse inclination at robot scale: a plane fit
// over a footprint-sized window in metres rather than the per-cell window.
type robotSlopeStage struct {
	name     string
	critical float64 // radians
	radiusM  float64
}

func newRobotSlopeStage(name string, params map[string]float64) (Stage, error) {
	critical := paramOr(params, "critical_slope_degrees", 25) * math.Pi / 180
	if critical <= 0 {
		return nil, fmt.Errorf("critical_slope_degrees must be positive")
	}
	return &robotSlopeStage{
		name:     name,
		critical: critical,
		radiusM:  paramOr(params, "radius_m", 0.5),
	}, nil
}

func (s *robotSlopeStage) Name() string { return s.name }

func (s *robotSlopeStage) Apply(m *gridmap.Map) error {
	m.Add(gridmap.LayerRobotSlope, math.NaN())
	window := int(math.Ceil(s.radiusM / m.Resolution))
	if window < 1 {
		window = 1
	}
	forEachValidCell(m, func(idx gridmap.Index) {
		xs, ys, zs := windowSamples(m, idx, window)
		slope, ok := planeSlope(xs, ys, zs)
		if !ok {
			return
		}
		m.SetAt(gridmap.LayerRobotSlope, idx, clamp01(1-slope/s.critical))
	})
	return nil
}

// forEachValidCell visits every cell with valid elevation.
func forEachValidCell(m *gridmap.Map, visit func(gridmap.Index)) {
	for row := 0; row < m.Rows; row++ {
		for col := 0; col < m.Cols; col++ {
			idx := gridmap.Index{Row: row, Col: col}
			if m.IsValid(gridmap.LayerElevation, idx) {
				visit(idx)
			}
		}
	}
}
