package main

import (
	"fmt"
	"math"

	"github.com/banshee-data/terrain.report/internal/config"
	"github.com/banshee-data/terrain.report/internal/gridmap"
	"github.com/banshee-data/terrain.report/internal/traverse"
)

// GridJSON is the wire form of a grid map. JSON has no NaN, so layer cells
// are nullable: null on the wire is a no-data cell in the map.
type GridJSON struct {
	FrameID    string                `json:"frame_id"`
	Resolution float64               `json:"resolution"`
	Rows       int                   `json:"rows"`
	Cols       int                   `json:"cols"`
	OriginX    float64               `json:"origin_x"`
	OriginY    float64               `json:"origin_y"`
	Layers     map[string][]*float64 `json:"layers"`
}

// ToMap builds a grid map from the wire form, validating geometry and
// layer lengths.
func (g *GridJSON) ToMap() (*gridmap.Map, error) {
	m, err := gridmap.NewMap(g.FrameID, g.Resolution, g.Rows, g.Cols, g.OriginX, g.OriginY)
	if err != nil {
		return nil, err
	}
	for name, cells := range g.Layers {
		data := make([]float64, len(cells))
		for i, v := range cells {
			if v == nil {
				data[i] = math.NaN()
			} else {
				data[i] = *v
			}
		}
		if err := m.AddData(name, data); err != nil {
			return nil, fmt.Errorf("layer %q: %w", name, err)
		}
	}
	return m, nil
}

// GridToJSON converts a grid map to the wire form.
func GridToJSON(m *gridmap.Map) *GridJSON {
	g := &GridJSON{
		FrameID:    m.FrameID,
		Resolution: m.Resolution,
		Rows:       m.Rows,
		Cols:       m.Cols,
		OriginX:    m.OriginX,
		OriginY:    m.OriginY,
		Layers:     make(map[string][]*float64, len(m.Layers())),
	}
	for _, name := range m.Layers() {
		data := m.Data(name)
		cells := make([]*float64, len(data))
		for i, v := range data {
			if !math.IsNaN(v) {
				v := v
				cells[i] = &v
			}
		}
		g.Layers[name] = cells
	}
	return g
}

// CheckPathRequest is the body of POST /api/check_path.
type CheckPathRequest struct {
	Path traverse.Path `json:"path"`
}

// EvaluateRequest is the body of POST /api/evaluate: a single footprint
// placement to score.
type EvaluateRequest struct {
	Pose      traverse.Pose      `json:"pose"`
	Footprint traverse.Footprint `json:"footprint"`
}

// FractionResponse is the body of GET /api/fraction.
type FractionResponse struct {
	Fraction float64 `json:"fraction"`
}

// ReloadFiltersRequest is the body of POST /api/reload_filters.
type ReloadFiltersRequest struct {
	Chain []config.StageConfig `json:"chain"`
}

// StatusResponse acknowledges a state-changing request.
type StatusResponse struct {
	Status string `json:"status"`
}
