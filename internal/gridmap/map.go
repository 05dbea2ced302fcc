package gridmap

import (
	"fmt"
	"math"
)

// Well-known layer names shared across the engine.
const (
	LayerElevation               = "elevation"
	LayerTraversability          = "traversability"
	LayerSlope                   = "slope"
	LayerStep                    = "step"
	LayerRoughness               = "roughness"
	LayerRobotSlope              = "robot_slope"
	LayerFootprintTraversability = "footprint_traversability"
	LayerFootprintStep           = "footprint_step"
)

// Index addresses a single cell. Row 0 / Col 0 is the corner with the
// smallest X and Y coordinates.
type Index struct {
	Row int
	Col int
}

// Position is a planar position in the map frame, in metres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Map is a bounded planar region of fixed resolution carrying named
// float64 layers. All layers share the same geometry; NaN marks no-data.
type Map struct {
	FrameID    string
	Resolution float64 // metres per cell
	Rows       int     // extent in Y
	Cols       int     // extent in X
	OriginX    float64 // planar position of the map center
	OriginY    float64

	layers map[string][]float64
}

// NewMap creates an empty map with the given geometry and no layers.
func NewMap(frameID string, resolution float64, rows, cols int, originX, originY float64) (*Map, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("gridmap: resolution must be positive, got %g", resolution)
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("gridmap: size must be positive, got %dx%d", rows, cols)
	}
	return &Map{
		FrameID:    frameID,
		Resolution: resolution,
		Rows:       rows,
		Cols:       cols,
		OriginX:    originX,
		OriginY:    originY,
		layers:     make(map[string][]float64),
	}, nil
}

// Add creates (or replaces) a layer filled with the given value.
func (m *Map) Add(layer string, fill float64) {
	data := make([]float64, m.Rows*m.Cols)
	for i := range data {
		data[i] = fill
	}
	m.layers[layer] = data
}

// AddData creates (or replaces) a layer from row-major data. The slice is
// copied; its length must match the map geometry.
func (m *Map) AddData(layer string, data []float64) error {
	if len(data) != m.Rows*m.Cols {
		return fmt.Errorf("gridmap: layer %q has %d values, geometry needs %d", layer, len(data), m.Rows*m.Cols)
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	m.layers[layer] = cp
	return nil
}

// Has reports whether the named layer exists.
func (m *Map) Has(layer string) bool {
	_, ok := m.layers[layer]
	return ok
}

// Layers returns the layer names in unspecified order.
func (m *Map) Layers() []string {
	names := make([]string, 0, len(m.layers))
	for name := range m.layers {
		names = append(names, name)
	}
	return names
}

// Data returns the backing row-major slice for a layer, or nil if absent.
// Callers must not retain it across a store replace.
func (m *Map) Data(layer string) []float64 {
	return m.layers[layer]
}

// At returns the value of layer at idx. Out-of-bounds or missing layers
// read as NaN, matching the no-data convention.
func (m *Map) At(layer string, idx Index) float64 {
	if !m.IsInside(idx) {
		return math.NaN()
	}
	data, ok := m.layers[layer]
	if !ok {
		return math.NaN()
	}
	return data[idx.Row*m.Cols+idx.Col]
}

// SetAt writes the value of layer at idx. Writes outside the map or to a
// missing layer are dropped.
func (m *Map) SetAt(layer string, idx Index, v float64) {
	if !m.IsInside(idx) {
		return
	}
	data, ok := m.layers[layer]
	if !ok {
		return
	}
	data[idx.Row*m.Cols+idx.Col] = v
}

// IsInside reports whether idx addresses a cell of the map.
func (m *Map) IsInside(idx Index) bool {
	return idx.Row >= 0 && idx.Row < m.Rows && idx.Col >= 0 && idx.Col < m.Cols
}

// minX returns the X coordinate of the low-corner cell edge.
func (m *Map) minX() float64 { return m.OriginX - float64(m.Cols)*m.Resolution/2 }
func (m *Map) minY() float64 { return m.OriginY - float64(m.Rows)*m.Resolution/2 }

// CellCenter returns the planar position of the center of the cell at idx.
func (m *Map) CellCenter(idx Index) Position {
	return Position{
		X: m.minX() + (float64(idx.Col)+0.5)*m.Resolution,
		Y: m.minY() + (float64(idx.Row)+0.5)*m.Resolution,
	}
}

// IndexAt returns the cell containing pos, and whether pos is inside the map.
func (m *Map) IndexAt(pos Position) (Index, bool) {
	col := int(math.Floor((pos.X - m.minX()) / m.Resolution))
	row := int(math.Floor((pos.Y - m.minY()) / m.Resolution))
	idx := Index{Row: row, Col: col}
	return idx, m.IsInside(idx)
}

// Copy returns a deep copy of the map, including all layer data.
func (m *Map) Copy() *Map {
	cp := &Map{
		FrameID:    m.FrameID,
		Resolution: m.Resolution,
		Rows:       m.Rows,
		Cols:       m.Cols,
		OriginX:    m.OriginX,
		OriginY:    m.OriginY,
		layers:     make(map[string][]float64, len(m.layers)),
	}
	for name, data := range m.layers {
		d := make([]float64, len(data))
		copy(d, data)
		cp.layers[name] = d
	}
	return cp
}

// SameGeometry reports whether two maps share resolution, extent and origin.
func (m *Map) SameGeometry(o *Map) bool {
	return m.Resolution == o.Resolution &&
		m.Rows == o.Rows && m.Cols == o.Cols &&
		m.OriginX == o.OriginX && m.OriginY == o.OriginY
}

// IsValid reports whether the value of layer at idx is present (not NaN).
func (m *Map) IsValid(layer string, idx Index) bool {
	return !math.IsNaN(m.At(layer, idx))
}
