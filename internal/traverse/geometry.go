package traverse

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// Params holds the thresholds and neighbourhood sizes for the cell- and
// line-level hazard tests. Callers pass values as given: defaulting of
// absent configuration keys happens once, in the config layer, so an
// explicit zero (e.g. MinFeatureCells 0 to disable noise suppression) is
// honoured rather than rewritten.
type Params struct {
	MaxStepHeight     float64 // metres
	MaxSlopeRad       float64 // radians
	MaxInclinationRad float64 // radians
	StepWindowCells   int     // neighbourhood radius for step checks
	SlopeWindowCells  int     // neighbourhood radius for slope checks
	MinFeatureCells   int     // drops smaller than this are noise
	SampleSpacing     float64 // metres between inclination samples
}

// CheckForStep reports whether a step hazard exists at idx. It compares
// elevation differences between idx and every valid cell within the window.
// A neighbour above the cell by more than MaxStepHeight always flags a step;
// a drop flags one only when at least MinFeatureCells cells share it, so
// narrow notches and ditches the wheelbase spans are not reported.
func CheckForStep(snap *gridmap.Map, idx gridmap.Index, p Params) bool {
	center := snap.At(gridmap.LayerElevation, idx)
	if math.IsNaN(center) {
		return false
	}
	lowCells := 0
	for row := idx.Row - p.StepWindowCells; row <= idx.Row+p.StepWindowCells; row++ {
		for col := idx.Col - p.StepWindowCells; col <= idx.Col+p.StepWindowCells; col++ {
			n := gridmap.Index{Row: row, Col: col}
			if n == idx {
				continue
			}
			v := snap.At(gridmap.LayerElevation, n)
			if math.IsNaN(v) {
				continue
			}
			diff := v - center
			if diff > p.MaxStepHeight {
				return true
			}
			if -diff > p.MaxStepHeight {
				lowCells++
			}
		}
	}
	return lowCells > 0 && lowCells >= p.MinFeatureCells
}

// CheckForSlope reports whether the local terrain gradient at idx exceeds
// MaxSlopeRad. The gradient comes from a least-squares plane fit over the
// window. If the threshold is exceeded, the fit is repeated without the
// worst-residual cell: a single spiked cell then no longer dominates the
// gradient, rejecting sensor spikes.
func CheckForSlope(snap *gridmap.Map, idx gridmap.Index, p Params) bool {
	xs, ys, zs := windowSamples(snap, idx, p.SlopeWindowCells)
	slope, ok := planeSlope(xs, ys, zs)
	if !ok || slope <= p.MaxSlopeRad {
		return false
	}
	if len(zs) <= 4 {
		return true
	}
	xs, ys, zs = dropWorstResidual(xs, ys, zs)
	slope, ok = planeSlope(xs, ys, zs)
	return ok && slope > p.MaxSlopeRad
}

// CheckInclination reports whether the straight segment from a to b keeps
// its local inclination within MaxInclinationRad. Elevation is sampled at
// SampleSpacing intervals with bilinear interpolation; samples without
// elevation data are skipped. A zero-length segment always passes.
func CheckInclination(snap *gridmap.Map, a, b gridmap.Position, p Params) bool {
	spacing := p.SampleSpacing
	if spacing <= 0 {
		// Non-positive spacing samples only the endpoints.
		spacing = math.Hypot(b.X-a.X, b.Y-a.Y)
	}
	samples := gridmap.LinePositions(a, b, spacing)
	if len(samples) < 2 {
		return true
	}
	prevZ := math.NaN()
	var prev gridmap.Position
	for _, pos := range samples {
		z := snap.AtPositionInterpolated(gridmap.LayerElevation, pos)
		if math.IsNaN(z) {
			continue
		}
		if !math.IsNaN(prevZ) {
			run := math.Hypot(pos.X-prev.X, pos.Y-prev.Y)
			if run > 0 && math.Atan(math.Abs(z-prevZ)/run) > p.MaxInclinationRad {
				return false
			}
		}
		prevZ = z
		prev = pos
	}
	return true
}

// windowSamples collects valid elevation samples in the window around idx,
// with planar coordinates relative to the window center.
func windowSamples(snap *gridmap.Map, idx gridmap.Index, radius int) (xs, ys, zs []float64) {
	res := snap.Resolution
	for row := idx.Row - radius; row <= idx.Row+radius; row++ {
		for col := idx.Col - radius; col <= idx.Col+radius; col++ {
			v := snap.At(gridmap.LayerElevation, gridmap.Index{Row: row, Col: col})
			if math.IsNaN(v) {
				continue
			}
			xs = append(xs, float64(col-idx.Col)*res)
			ys = append(ys, float64(row-idx.Row)*res)
			zs = append(zs, v)
		}
	}
	return xs, ys, zs
}

// planeSlope fits z = a + b*x + c*y and returns the slope angle of the
// fitted plane. At least 3 samples are required.
func planeSlope(xs, ys, zs []float64) (float64, bool) {
	b, c, _, ok := fitPlane(xs, ys, zs)
	if !ok {
		return 0, false
	}
	return math.Atan(math.Hypot(b, c)), true
}

// fitPlane solves the least-squares plane z = a + b*x + c*y and returns the
// gradient components and per-sample residuals.
func fitPlane(xs, ys, zs []float64) (b, c float64, residuals []float64, ok bool) {
	n := len(zs)
	if n < 3 {
		return 0, 0, nil, false
	}
	design := mat.NewDense(n, 3, nil)
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		design.Set(i, 1, xs[i])
		design.Set(i, 2, ys[i])
		rhs.SetVec(i, zs[i])
	}
	var sol mat.VecDense
	if err := sol.SolveVec(design, rhs); err != nil {
		return 0, 0, nil, false
	}
	a := sol.AtVec(0)
	b = sol.AtVec(1)
	c = sol.AtVec(2)
	residuals = make([]float64, n)
	for i := 0; i < n; i++ {
		residuals[i] = zs[i] - (a + b*xs[i] + c*ys[i])
	}
	return b, c, residuals, true
}

func dropWorstResidual(xs, ys, zs []float64) ([]float64, []float64, []float64) {
	_, _, residuals, ok := fitPlane(xs, ys, zs)
	if !ok {
		return xs, ys, zs
	}
	worst := 0
	for i, r := range residuals {
		if math.Abs(r) > math.Abs(residuals[worst]) {
			worst = i
		}
	}
	return append(xs[:worst:worst], xs[worst+1:]...),
		append(ys[:worst:worst], ys[worst+1:]...),
		append(zs[:worst:worst], zs[worst+1:]...)
}
