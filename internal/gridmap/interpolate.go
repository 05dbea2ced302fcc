package gridmap

import "math"

// AtPosition returns the value of layer in the cell containing pos,
// or NaN if pos is outside the map.
func (m *Map) AtPosition(layer string, pos Position) float64 {
	idx, ok := m.IndexAt(pos)
	if !ok {
		return math.NaN()
	}
	return m.At(layer, idx)
}

// AtPositionInterpolated returns the bilinear interpolation of layer at pos
// using the four surrounding cell centers. Near the map edge, or when any
// neighbour is no-data, it falls back to the containing cell's value.
func (m *Map) AtPositionInterpolated(layer string, pos Position) float64 {
	// Fractional cell coordinates relative to cell centers.
	fx := (pos.X-m.minX())/m.Resolution - 0.5
	fy := (pos.Y-m.minY())/m.Resolution - 0.5
	col0 := int(math.Floor(fx))
	row0 := int(math.Floor(fy))
	tx := fx - float64(col0)
	ty := fy - float64(row0)

	v00 := m.At(layer, Index{Row: row0, Col: col0})
	v01 := m.At(layer, Index{Row: row0, Col: col0 + 1})
	v10 := m.At(layer, Index{Row: row0 + 1, Col: col0})
	v11 := m.At(layer, Index{Row: row0 + 1, Col: col0 + 1})

	if math.IsNaN(v00) || math.IsNaN(v01) || math.IsNaN(v10) || math.IsNaN(v11) {
		return m.AtPosition(layer, pos)
	}
	top := v00*(1-tx) + v01*tx
	bot := v10*(1-tx) + v11*tx
	return top*(1-ty) + bot*ty
}
