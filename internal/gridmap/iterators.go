package gridmap

import "math"

// PolygonCells returns the indices of all cells whose centers lie inside
// poly (inclusive boundary), restricted to the map extent. Iteration is
// limited to the polygon's bounding box.
func (m *Map) PolygonCells(poly Polygon) []Index {
	min, max := poly.BoundingBox()
	return m.boxCells(min, max, func(center Position) bool {
		return poly.Contains(center)
	})
}

// CircleCells returns the indices of all cells whose centers lie within the
// annulus [radiusMin, radiusMax] around center. radiusMin = 0 yields a full
// disc. Both bounds are inclusive.
func (m *Map) CircleCells(center Position, radiusMax, radiusMin float64) []Index {
	min := Position{X: center.X - radiusMax, Y: center.Y - radiusMax}
	max := Position{X: center.X + radiusMax, Y: center.Y + radiusMax}
	return m.boxCells(min, max, func(c Position) bool {
		d := math.Hypot(c.X-center.X, c.Y-center.Y)
		return d <= radiusMax && d >= radiusMin
	})
}

// boxCells scans cells overlapping the bounding box and keeps those whose
// centers satisfy the membership test.
func (m *Map) boxCells(min, max Position, member func(Position) bool) []Index {
	colLo := int(math.Floor((min.X - m.minX()) / m.Resolution))
	colHi := int(math.Floor((max.X - m.minX()) / m.Resolution))
	rowLo := int(math.Floor((min.Y - m.minY()) / m.Resolution))
	rowHi := int(math.Floor((max.Y - m.minY()) / m.Resolution))
	if colLo < 0 {
		colLo = 0
	}
	if rowLo < 0 {
		rowLo = 0
	}
	if colHi >= m.Cols {
		colHi = m.Cols - 1
	}
	if rowHi >= m.Rows {
		rowHi = m.Rows - 1
	}

	var cells []Index
	for row := rowLo; row <= rowHi; row++ {
		for col := colLo; col <= colHi; col++ {
			idx := Index{Row: row, Col: col}
			if member(m.CellCenter(idx)) {
				cells = append(cells, idx)
			}
		}
	}
	return cells
}

// LinePositions samples the closed segment from a to b at the given spacing,
// always including both endpoints. A zero-length segment yields a single
// sample. Spacing must be positive.
func LinePositions(a, b Position, spacing float64) []Position {
	dist := math.Hypot(b.X-a.X, b.Y-a.Y)
	if dist == 0 {
		return []Position{a}
	}
	n := int(math.Ceil(dist / spacing))
	out := make([]Position, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		out = append(out, Position{
			X: a.X + t*(b.X-a.X),
			Y: a.Y + t*(b.Y-a.Y),
		})
	}
	return out
}
