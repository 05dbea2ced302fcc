// Package monitor renders traversability map layers as heatmap images for
// diagnostics and visual inspection.
package monitor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/terrain.report/internal/gridmap"
)

// layerGrid adapts one layer of a grid map to plotter.GridXYZ. No-data
// cells return NaN, which the heatmap plotter leaves blank.
type layerGrid struct {
	m     *gridmap.Map
	layer string
}

func (g layerGrid) Dims() (c, r int) { return g.m.Cols, g.m.Rows }

func (g layerGrid) Z(c, r int) float64 {
	return g.m.At(g.layer, gridmap.Index{Row: r, Col: c})
}

func (g layerGrid) X(c int) float64 {
	return g.m.CellCenter(gridmap.Index{Row: 0, Col: c}).X
}

func (g layerGrid) Y(r int) float64 {
	return g.m.CellCenter(gridmap.Index{Row: r, Col: 0}).Y
}

// newHeatmapPlot builds the plot for one layer.
func newHeatmapPlot(m *gridmap.Map, layer string) (*plot.Plot, error) {
	if !m.Has(layer) {
		return nil, fmt.Errorf("map has no layer %q", layer)
	}
	pal := moreland.SmoothBlueRed().Palette(255)
	hm := plotter.NewHeatMap(layerGrid{m: m, layer: layer}, pal)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%s)", layer, m.FrameID)
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"
	p.Add(hm)
	return p, nil
}

// WritePNG renders the layer heatmap as a PNG into w.
func WritePNG(w io.Writer, m *gridmap.Map, layer string) error {
	p, err := newHeatmapPlot(m, layer)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering %s heatmap: %w", layer, err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing %s heatmap: %w", layer, err)
	}
	return nil
}

// SavePNG renders the layer heatmap to a file, creating the directory if
// needed.
func SavePNG(path string, m *gridmap.Map, layer string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WritePNG(f, m, layer)
}
