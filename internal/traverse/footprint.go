package traverse

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// Evaluator scores footprint placements against a traversability map
// snapshot. It holds the footprint shape (base-frame polygon and/or disc
// radii) and the default score for placements covering no valid cell.
type Evaluator struct {
	Footprint   gridmap.Polygon // base-frame vertices; may be empty
	Radius      float64         // disc radius, metres
	InnerRadius float64         // annulus inner radius; 0 for a full disc
	Default     float64         // score for placements with no valid cell
	Params      Params          // step-hazard parameters
}

// placement is the outcome of scoring one set of covered cells.
type placement struct {
	score      float64
	fully      bool // every valid cell >0 and no step hazard
	stepHazard bool
	covered    int // valid cells covered
}

// EvaluatePolygon scores the placement of poly on the snapshot: the mean
// traversability over cells whose centers lie inside poly (inclusive
// boundary), excluding no-data cells from the mean. A polygon covering no
// valid cell scores the default and is not fully traversable.
func (e *Evaluator) EvaluatePolygon(snap *gridmap.Map, poly gridmap.Polygon) (float64, bool, error) {
	if len(poly.Vertices) < 3 {
		return 0, false, &ValidationError{Reason: fmt.Sprintf("footprint polygon has %d vertices, need at least 3", len(poly.Vertices))}
	}
	if err := poly.Validate(); err != nil {
		return 0, false, &GeometryError{Err: err}
	}
	pl := e.scoreCells(snap, snap.PolygonCells(poly))
	return pl.score, pl.fully, nil
}

// EvaluateCircle scores a disc placement, or an annulus when radiusMin > 0
// (used for inflated-footprint edge checks).
func (e *Evaluator) EvaluateCircle(snap *gridmap.Map, center gridmap.Position, radiusMax, radiusMin float64) (float64, bool, error) {
	if radiusMax <= 0 || radiusMin < 0 || radiusMin >= radiusMax {
		return 0, false, &GeometryError{Err: fmt.Errorf("radii [%g, %g] undefined", radiusMin, radiusMax)}
	}
	pl := e.scoreCells(snap, snap.CircleCells(center, radiusMax, radiusMin))
	return pl.score, pl.fully, nil
}

func (e *Evaluator) scoreCells(snap *gridmap.Map, cells []gridmap.Index) placement {
	pl := placement{fully: true}
	sum := 0.0
	for _, idx := range cells {
		v := snap.At(gridmap.LayerTraversability, idx)
		if math.IsNaN(v) {
			continue
		}
		pl.covered++
		sum += v
		if v <= 0 {
			pl.fully = false
		}
		if CheckForStep(snap, idx, e.Params) {
			pl.stepHazard = true
			pl.fully = false
		}
	}
	if pl.covered == 0 {
		pl.score = e.Default
		pl.fully = false
		return pl
	}
	pl.score = sum / float64(pl.covered)
	return pl
}

// combineConservative merges the two orientation passes of a bake: minimum
// score, hazard if either pass saw one. Keeping this policy explicit makes
// the conservatism testable on its own.
func combineConservative(a, b placement) placement {
	out := placement{
		score:      math.Min(a.score, b.score),
		fully:      a.fully && b.fully,
		stepHazard: a.stepHazard || b.stepHazard,
		covered:    a.covered,
	}
	if b.covered < a.covered {
		out.covered = b.covered
	}
	return out
}

// BakeFootprintYaw evaluates the footprint polygon at every cell twice,
// axis-aligned and rotated by yaw, and writes the conservative combination
// into the footprint layers of a copy of the snapshot. Evaluating both
// orientations guards against a footprint whose worst orientation differs
// from the grid's x-axis. Rows are processed in parallel.
func (e *Evaluator) BakeFootprintYaw(snap *gridmap.Map, yaw float64) (*gridmap.Map, error) {
	if len(e.Footprint.Vertices) < 3 {
		return nil, &ValidationError{Reason: "no footprint polygon configured"}
	}
	if err := e.Footprint.Validate(); err != nil {
		return nil, &GeometryError{Err: err}
	}
	return e.bake(snap, func(center gridmap.Position) placement {
		axis := e.scoreCells(snap, snap.PolygonCells(e.Footprint.Transformed(center, 0)))
		rot := e.scoreCells(snap, snap.PolygonCells(e.Footprint.Transformed(center, yaw)))
		return combineConservative(axis, rot)
	})
}

// BakeFootprintCircle is the circular analogue: a disc of the given radius
// and, when offset > 0, a second pass with the disc grown by the offset,
// min-combined the same way.
func (e *Evaluator) BakeFootprintCircle(snap *gridmap.Map, radius, offset float64) (*gridmap.Map, error) {
	if radius <= 0 || offset < 0 {
		return nil, &GeometryError{Err: fmt.Errorf("radius %g / offset %g undefined", radius, offset)}
	}
	return e.bake(snap, func(center gridmap.Position) placement {
		inner := e.scoreCells(snap, snap.CircleCells(center, radius, 0))
		if offset == 0 {
			return inner
		}
		outer := e.scoreCells(snap, snap.CircleCells(center, radius+offset, 0))
		return combineConservative(inner, outer)
	})
}

// bake runs place over every valid-traversability cell of the snapshot and
// writes results into the footprint layers of a private copy. The snapshot
// itself is only read, so a bake can run concurrently with queries.
func (e *Evaluator) bake(snap *gridmap.Map, place func(center gridmap.Position) placement) (*gridmap.Map, error) {
	out := snap.Copy()
	for _, layer := range footprintLayers {
		out.Add(layer, math.NaN())
	}
	travOut := out.Data(gridmap.LayerFootprintTraversability)
	stepOut := out.Data(gridmap.LayerFootprintStep)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for row := 0; row < snap.Rows; row++ {
		row := row
		g.Go(func() error {
			for col := 0; col < snap.Cols; col++ {
				idx := gridmap.Index{Row: row, Col: col}
				if !snap.IsValid(gridmap.LayerTraversability, idx) {
					continue
				}
				pl := place(snap.CellCenter(idx))
				flat := row*snap.Cols + col
				travOut[flat] = pl.score
				if pl.stepHazard {
					stepOut[flat] = 0
				} else {
					stepOut[flat] = 1
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
