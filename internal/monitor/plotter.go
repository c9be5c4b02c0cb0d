package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gridscan/internal/scanstore"
)

// resultGrid adapts a 2-D result grid to plotter.GridXYZ. Rows map to the
// first squeezed axis, columns to the second; coordinates are indices.
type resultGrid struct {
	rows, cols int
	values     []float64
}

func (g *resultGrid) Dims() (c, r int)   { return g.cols, g.rows }
func (g *resultGrid) Z(c, r int) float64 { return g.values[r*g.cols+c] }
func (g *resultGrid) X(c int) float64    { return float64(c) }
func (g *resultGrid) Y(r int) float64    { return float64(r) }

// BuildPlot builds a gonum plot for a run: a line for 1-D grids, a heatmap
// for 2-D. Higher-dimensional results cannot be plotted directly.
func BuildPlot(run *scanstore.Run) (*plot.Plot, error) {
	shape, names := squeezeRun(run)

	p := plot.New()
	p.Title.Text = chartTitle(run)

	switch len(shape) {
	case 0, 1:
		pts := make(plotter.XYs, len(run.Values))
		for i, v := range run.Values {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("building line: %w", err)
		}
		p.Add(line)
		p.X.Label.Text = "index"
		if len(names) == 1 {
			p.X.Label.Text = names[0]
		}
		p.Y.Label.Text = "value"

	case 2:
		grid := &resultGrid{rows: shape[0], cols: shape[1], values: run.Values}
		hm := plotter.NewHeatMap(grid, moreland.SmoothBlueRed().Palette(255))
		p.Add(hm)
		p.X.Label.Text = names[1]
		p.Y.Label.Text = names[0]

	default:
		return nil, fmt.Errorf("plotting supports 1-D and 2-D results, got %d dimensions", len(shape))
	}

	return p, nil
}

// SavePNG writes a PNG rendering of the run to path.
func SavePNG(run *scanstore.Run, path string) error {
	p, err := BuildPlot(run)
	if err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot to %s: %w", path, err)
	}
	return nil
}

// writePNG renders the run as PNG to w.
func writePNG(run *scanstore.Run, w io.Writer) error {
	p, err := BuildPlot(run)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}
	return nil
}

// handleResultPNG renders a scan result as a static PNG. Query params:
//   - run_id (optional; defaults to the last completed run)
func (s *Server) handleResultPNG(w http.ResponseWriter, r *http.Request) {
	run, status, msg := s.chartRun(r)
	if run == nil {
		s.writeJSONError(w, status, msg)
		return
	}

	var buf bytes.Buffer
	if err := writePNG(run, &buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
