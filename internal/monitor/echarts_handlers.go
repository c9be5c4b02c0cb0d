package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gridscan/internal/scanstore"
)

// chartRun resolves the run to visualise: a persisted run when run_id is
// given, otherwise the last completed in-memory result.
func (s *Server) chartRun(r *http.Request) (*scanstore.Run, int, string) {
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		if s.store == nil {
			return nil, http.StatusServiceUnavailable, "run store not configured"
		}
		run, err := s.store.GetRun(runID)
		if err != nil {
			return nil, http.StatusNotFound, err.Error()
		}
		return run, 0, ""
	}

	result, ok := s.runner.Result()
	if !ok {
		return nil, http.StatusNotFound, "no completed run"
	}
	state := s.runner.State()
	return &scanstore.Run{
		RunID:  state.RunID,
		Label:  state.Label,
		Metric: state.Metric,
		Axes:   state.Axes,
		Shape:  result.Shape(),
		Values: result.Flat(),
	}, 0, ""
}

// squeezeRun drops length-1 dimensions and returns the remaining shape and
// matching axis names. Fixed axes and single-value axes do not add a
// plottable dimension.
func squeezeRun(run *scanstore.Run) (shape []int, names []string) {
	for i, n := range run.Shape {
		if n <= 1 {
			continue
		}
		shape = append(shape, n)
		if i < len(run.Axes) {
			names = append(names, run.Axes[i].Name)
		} else {
			names = append(names, fmt.Sprintf("axis%d", i))
		}
	}
	return shape, names
}

func chartTitle(run *scanstore.Run) string {
	if run.Label != "" {
		return run.Label
	}
	if run.Metric != "" {
		return run.Metric
	}
	return "scan result"
}

// handleResultChart renders a quick HTML chart of a scan result using
// go-echarts: a line for 1-D grids, a heatmap for 2-D. This is a
// debugging-only endpoint (no auth) for a quick look without a UI.
// Query params:
//   - run_id (optional; defaults to the last completed run)
func (s *Server) handleResultChart(w http.ResponseWriter, r *http.Request) {
	run, status, msg := s.chartRun(r)
	if run == nil {
		s.writeJSONError(w, status, msg)
		return
	}

	shape, names := squeezeRun(run)

	var buf bytes.Buffer
	var err error
	switch len(shape) {
	case 0, 1:
		err = renderLineChart(&buf, run, names)
	case 2:
		err = renderHeatmapChart(&buf, run, shape, names)
	default:
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("debug chart supports 1-D and 2-D results, got %d dimensions", len(shape)))
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func renderLineChart(buf *bytes.Buffer, run *scanstore.Run, names []string) error {
	xName := "index"
	if len(names) == 1 {
		xName = names[0]
	}

	xs := make([]string, len(run.Values))
	data := make([]opts.LineData, len(run.Values))
	for i, v := range run.Values {
		xs[i] = strconv.Itoa(i)
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan Result", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: chartTitle(run), Subtitle: fmt.Sprintf("run=%s points=%d", run.RunID, len(run.Values))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName, NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(xs).AddSeries("value", data)

	return line.Render(buf)
}

func renderHeatmapChart(buf *bytes.Buffer, run *scanstore.Run, shape []int, names []string) error {
	rows, cols := shape[0], shape[1]
	xs := make([]string, cols)
	for j := range xs {
		xs[j] = strconv.Itoa(j)
	}
	ys := make([]string, rows)
	for i := range ys {
		ys[i] = strconv.Itoa(i)
	}

	min, max := run.Values[0], run.Values[0]
	data := make([]opts.HeatMapData, 0, len(run.Values))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := run.Values[i*cols+j]
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, v}})
		}
	}
	if max == min {
		max = min + 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan Result", Theme: "dark", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: chartTitle(run), Subtitle: fmt.Sprintf("run=%s grid=%dx%d", run.RunID, rows, cols)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: names[1], NameLocation: "middle", NameGap: 25, Data: xs}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: names[0], NameLocation: "middle", NameGap: 30, Data: ys}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(min),
			Max:        float32(max),
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	hm.SetXAxis(xs).AddSeries("value", data)

	return hm.Render(buf)
}
