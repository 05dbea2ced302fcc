package traverse

import (
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/terrain.report/internal/config"
	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// Stage is one transformation step of the derivation chain. Apply reads
// named input layers of m and writes named output layers of identical
// geometry, mutating m in place. Stages must be safe for concurrent use
// on distinct maps: a stage instance may be shared by overlapping runs.
type Stage interface {
	Name() string
	Apply(m *gridmap.Map) error
}

// FusionPolicy combines per-cell sub-scores into a single traversability
// value. It receives only the sub-scores present for a cell (never NaN).
type FusionPolicy func(scores []float64) float64

// FuseMin is the default, conservative policy: the minimum sub-score.
func FuseMin(scores []float64) float64 {
	min := scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
	}
	return min
}

// fusedLayers are the sub-layers combined into traversability, when present.
var fusedLayers = []string{
	gridmap.LayerSlope,
	gridmap.LayerStep,
	gridmap.LayerRoughness,
	gridmap.LayerRobotSlope,
}

// Chain runs an ordered stage sequence over an elevation map and fuses the
// resulting sub-layers into the traversability layer. The stage slice is
// swapped atomically on Reload; a run in progress keeps the slice it
// captured, so reconfiguration never affects in-flight computations.
type Chain struct {
	mu           sync.Mutex
	stages       []Stage
	fuse         FusionPolicy
	defaultScore float64
}

// NewChain builds a chain from stage configs. fuse may be nil for FuseMin.
func NewChain(cfgs []config.StageConfig, defaultScore float64, fuse FusionPolicy) (*Chain, error) {
	stages, err := BuildStages(cfgs)
	if err != nil {
		return nil, err
	}
	if fuse == nil {
		fuse = FuseMin
	}
	return &Chain{stages: stages, fuse: fuse, defaultScore: defaultScore}, nil
}

// Compute derives a traversability map from the given elevation map. The
// input is not modified. On any stage failure the error is a PipelineError
// and no map is returned, leaving the caller's stored map untouched.
func (c *Chain) Compute(elev *gridmap.Map) (*gridmap.Map, error) {
	c.mu.Lock()
	stages := c.stages
	fuse := c.fuse
	def := c.defaultScore
	c.mu.Unlock()

	work := elev.Copy()
	for _, st := range stages {
		if err := st.Apply(work); err != nil {
			return nil, &PipelineError{Stage: st.Name(), Err: err}
		}
	}
	fuseLayers(work, fuse, def)
	// Footprint layers exist from the start so sweeps and resets always
	// have somewhere to write.
	for _, layer := range footprintLayers {
		if !work.Has(layer) {
			work.Add(layer, math.NaN())
		}
	}
	return work, nil
}

// Reload rebuilds the stage sequence from cfgs as an all-or-nothing swap.
// On failure the previous stages keep serving.
func (c *Chain) Reload(cfgs []config.StageConfig) error {
	stages, err := BuildStages(cfgs)
	if err != nil {
		return &PipelineError{Err: fmt.Errorf("reload: %w", err)}
	}
	c.mu.Lock()
	c.stages = stages
	c.mu.Unlock()
	return nil
}

// StageNames returns the names of the currently configured stages, in order.
func (c *Chain) StageNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.stages))
	for i, st := range c.stages {
		names[i] = st.Name()
	}
	return names
}

// fuseLayers writes the traversability layer: per valid-elevation cell the
// fusion of available sub-scores clamped to [0,1], or the default score if
// no sub-layer has a value there. Cells without elevation stay no-data.
func fuseLayers(m *gridmap.Map, fuse FusionPolicy, def float64) {
	m.Add(gridmap.LayerTraversability, math.NaN())
	var scores []float64
	for row := 0; row < m.Rows; row++ {
		for col := 0; col < m.Cols; col++ {
			idx := gridmap.Index{Row: row, Col: col}
			if !m.IsValid(gridmap.LayerElevation, idx) {
				continue
			}
			scores = scores[:0]
			for _, layer := range fusedLayers {
				if v := m.At(layer, idx); !math.IsNaN(v) {
					scores = append(scores, v)
				}
			}
			v := def
			if len(scores) > 0 {
				v = clamp01(fuse(scores))
			}
			m.SetAt(gridmap.LayerTraversability, idx, v)
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
