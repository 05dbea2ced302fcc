package traverse

import (
	"math"

	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// Pose is a planar robot pose.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"` // radians
}

// Footprint describes the robot ground-contact shape for a path query.
// Vertices (robot base frame) take precedence; with fewer than 3 vertices
// the disc radii apply.
type Footprint struct {
	Vertices    []gridmap.Position `json:"vertices,omitempty"`
	Radius      float64            `json:"radius,omitempty"`
	InnerRadius float64            `json:"inner_radius,omitempty"`
}

// Path is an ordered waypoint sequence plus footprint parameters.
type Path struct {
	Poses     []Pose    `json:"poses"`
	Footprint Footprint `json:"footprint"`
}

// Result is the outcome of a path or placement query.
type Result struct {
	Traversable    bool    `json:"is_traversable"`
	Traversability float64 `json:"traversability"`
	Area           float64 `json:"area,omitempty"`
}

// Checker evaluates waypoint paths end-to-end: footprint traversability at
// each waypoint and inclination feasibility along each segment.
type Checker struct {
	Eval   *Evaluator
	Params Params
}

// Check evaluates the path against the snapshot. Per consecutive waypoint
// pair it scores the footprint at both endpoints and samples the segment
// inclination; the segment passes only if all three pass. The aggregate is
// conservative: Traversable is the AND over segments, Traversability the
// minimum segment score. A single-waypoint path is one footprint
// evaluation with no inclination test. An empty path is invalid.
func (c *Checker) Check(snap *gridmap.Map, path Path) (Result, error) {
	if len(path.Poses) == 0 {
		return Result{}, &ValidationError{Reason: "path has no waypoints"}
	}

	area, err := c.footprintArea(path.Footprint)
	if err != nil {
		return Result{}, err
	}

	scores := make([]float64, len(path.Poses))
	safe := make([]bool, len(path.Poses))
	for i, pose := range path.Poses {
		score, fully, err := c.evaluateAt(snap, path.Footprint, pose)
		if err != nil {
			return Result{}, err
		}
		scores[i] = score
		safe[i] = fully
	}

	res := Result{Traversable: safe[0], Traversability: scores[0], Area: area}
	for i := 1; i < len(path.Poses); i++ {
		a := path.Poses[i-1]
		b := path.Poses[i]
		segOK := safe[i-1] && safe[i] &&
			CheckInclination(snap, gridmap.Position{X: a.X, Y: a.Y}, gridmap.Position{X: b.X, Y: b.Y}, c.Params)
		segScore := math.Min(scores[i-1], scores[i])
		res.Traversable = res.Traversable && segOK
		res.Traversability = math.Min(res.Traversability, segScore)
	}
	return res, nil
}

func (c *Checker) evaluateAt(snap *gridmap.Map, fp Footprint, pose Pose) (float64, bool, error) {
	center := gridmap.Position{X: pose.X, Y: pose.Y}
	if len(fp.Vertices) >= 3 {
		poly := gridmap.Polygon{Vertices: fp.Vertices}.Transformed(center, pose.Yaw)
		return c.Eval.EvaluatePolygon(snap, poly)
	}
	if len(fp.Vertices) > 0 {
		return 0, false, &ValidationError{Reason: "footprint polygon has fewer than 3 vertices"}
	}
	radius := fp.Radius
	if radius == 0 {
		radius = c.Eval.Radius
	}
	return c.Eval.EvaluateCircle(snap, center, radius, fp.InnerRadius)
}

func (c *Checker) footprintArea(fp Footprint) (float64, error) {
	if len(fp.Vertices) >= 3 {
		return gridmap.Polygon{Vertices: fp.Vertices}.Area(), nil
	}
	if len(fp.Vertices) > 0 {
		return 0, &ValidationError{Reason: "footprint polygon has fewer than 3 vertices"}
	}
	radius := fp.Radius
	if radius == 0 {
		radius = c.Eval.Radius
	}
	return math.Pi * radius * radius, nil
}
