package gridmap

import (
	"fmt"
	"math"
)

// Polygon is an ordered ring of planar vertices. Winding order does not
// matter; the ring is implicitly closed.
type Polygon struct {
	Vertices []Position
}

// NewPolygon builds a polygon from vertices without validating it.
func NewPolygon(vertices ...Position) Polygon {
	return Polygon{Vertices: vertices}
}

// Validate checks that the polygon can support membership testing.
// Fewer than 3 vertices is a validation failure; a zero-area or
// self-intersecting ring is a geometry failure, since inside/outside
// is undefined for it.
func (p Polygon) Validate() error {
	if len(p.Vertices) < 3 {
		return fmt.Errorf("polygon needs at least 3 vertices, got %d", len(p.Vertices))
	}
	if p.Area() == 0 {
		return fmt.Errorf("polygon is degenerate (zero area)")
	}
	if p.selfIntersects() {
		return fmt.Errorf("polygon is self-intersecting")
	}
	return nil
}

// Area returns the absolute enclosed area (shoelace formula).
func (p Polygon) Area() float64 {
	n := len(p.Vertices)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		a := p.Vertices[i]
		b := p.Vertices[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

// Contains reports whether pos lies inside the polygon. The boundary is
// inclusive: a point exactly on an edge or vertex counts as inside.
func (p Polygon) Contains(pos Position) bool {
	n := len(p.Vertices)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a := p.Vertices[j]
		b := p.Vertices[i]
		if onSegment(a, b, pos) {
			return true
		}
		// Ray casting toward +X.
		if (b.Y > pos.Y) != (a.Y > pos.Y) {
			xCross := (a.X-b.X)*(pos.Y-b.Y)/(a.Y-b.Y) + b.X
			if pos.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// BoundingBox returns the axis-aligned bounds of the polygon.
func (p Polygon) BoundingBox() (min, max Position) {
	min = Position{X: math.Inf(1), Y: math.Inf(1)}
	max = Position{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, v := range p.Vertices {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
	}
	return min, max
}

// Transformed returns the polygon rotated by yaw (radians, counterclockwise
// about the origin of its own frame) and translated to center. This is how a
// robot-base footprint is instantiated at a query pose.
func (p Polygon) Transformed(center Position, yaw float64) Polygon {
	sin, cos := math.Sincos(yaw)
	out := Polygon{Vertices: make([]Position, len(p.Vertices))}
	for i, v := range p.Vertices {
		out.Vertices[i] = Position{
			X: center.X + v.X*cos - v.Y*sin,
			Y: center.Y + v.X*sin + v.Y*cos,
		}
	}
	return out
}

const onSegmentEps = 1e-12

// onSegment reports whether q lies on the closed segment ab.
func onSegment(a, b, q Position) bool {
	cross := (b.X-a.X)*(q.Y-a.Y) - (b.Y-a.Y)*(q.X-a.X)
	if math.Abs(cross) > onSegmentEps*math.Max(1, math.Hypot(b.X-a.X, b.Y-a.Y)) {
		return false
	}
	dot := (q.X-a.X)*(b.X-a.X) + (q.Y-a.Y)*(b.Y-a.Y)
	if dot < 0 {
		return false
	}
	lenSq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	return dot <= lenSq
}

// selfIntersects tests all non-adjacent edge pairs for proper crossings.
// O(n^2) is fine for footprint-sized rings.
func (p Polygon) selfIntersects() bool {
	n := len(p.Vertices)
	for i := 0; i < n; i++ {
		a1 := p.Vertices[i]
		a2 := p.Vertices[(i+1)%n]
		for j := i + 2; j < n; j++ {
			// Skip edges sharing a vertex with edge i.
			if i == 0 && j == n-1 {
				continue
			}
			b1 := p.Vertices[j]
			b2 := p.Vertices[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a1, a2, b1, b2 Position) bool {
	d1 := orient(b1, b2, a1)
	d2 := orient(b1, b2, a2)
	d3 := orient(a1, a2, b1)
	d4 := orient(a1, a2, b2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func orient(a, b, c Position) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}
