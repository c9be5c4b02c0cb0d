// Command scan runs a parameter scan from the command line and writes the
// result grid as CSV, one row per point in enumeration order. Results can
// optionally be recorded to a run database and rendered to a PNG plot.
//
// Examples:
//
//	scan -axis x=0:1:0.25 -axis y=0:1:0.25 -metric sphere
//	scan -axis bias=5 -axis gain=1,2,4 -remote http://localhost:9000/eval -output grid.csv
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/banshee-data/gridscan/internal/metrics"
	"github.com/banshee-data/gridscan/internal/monitor"
	"github.com/banshee-data/gridscan/internal/scan"
	"github.com/banshee-data/gridscan/internal/scanstore"
)

func main() {
	var axes []scan.Axis
	flag.Func("axis", "Axis as name=value, name=v1,v2,... or name=min:max:step (repeatable, outermost first)", func(s string) error {
		ax, err := scan.ParseAxis(s)
		if err != nil {
			return err
		}
		axes = append(axes, ax)
		return nil
	})

	configFile := flag.String("config", "", "Load the scan request from a JSON file instead of -axis/-metric flags")
	metricName := flag.String("metric", "sphere", "Built-in metric to evaluate")
	remoteURL := flag.String("remote", "", "Evaluate points against a remote service instead of a built-in metric")
	extraJSON := flag.String("extra", "", "Extra metric arguments as a JSON object")
	label := flag.String("label", "", "Label recorded with the run")
	output := flag.String("output", "", "Output CSV filename (defaults to stdout)")
	dbFile := flag.String("db", "", "Record the run to this database")
	plotFile := flag.String("plot", "", "Render the result to this PNG file (1-D and 2-D grids only)")
	reportEvery := flag.Int("report-every", scan.DefaultReportEvery, "Log progress every N points (0 disables)")
	precisionFlag := flag.String("precision", "float64", "Result precision: float64 or float32")
	timeout := flag.Duration("timeout", 0, "Abort the scan after this duration (0 means no limit)")
	flag.Parse()

	var metric scan.Metric
	var extra scan.Args
	precision := scan.Float64

	if *configFile != "" {
		if len(axes) > 0 {
			log.Fatal("use either -config or -axis flags, not both")
		}
		data, err := os.ReadFile(*configFile)
		if err != nil {
			log.Fatalf("reading config: %v", err)
		}
		var req monitor.ScanRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Fatalf("invalid config %s: %v", *configFile, err)
		}
		spec, err := req.ToSpec(metrics.DefaultRegistry())
		if err != nil {
			log.Fatalf("invalid config %s: %v", *configFile, err)
		}
		axes = spec.Axes
		metric = spec.Metric
		extra = spec.Extra
		precision = spec.Precision
		*metricName = spec.MetricName
		if *label == "" {
			*label = spec.Label
		}
		if spec.ReportEvery != 0 {
			*reportEvery = spec.ReportEvery
		}
	}

	if len(axes) == 0 {
		log.Fatal("at least one -axis is required")
	}

	if metric == nil {
		if *remoteURL != "" {
			metric = metrics.Remote(nil, *remoteURL)
			*metricName = "remote"
		} else {
			def, ok := metrics.DefaultRegistry().Get(*metricName)
			if !ok {
				log.Fatalf("unknown metric %q", *metricName)
			}
			metric = def.Fn
		}

		if *extraJSON != "" {
			if err := json.Unmarshal([]byte(*extraJSON), &extra); err != nil {
				log.Fatalf("invalid -extra: %v", err)
			}
		}

		switch *precisionFlag {
		case "float64":
		case "float32":
			precision = scan.Float32
		default:
			log.Fatalf("unknown precision %q", *precisionFlag)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	opts := []scan.Option{
		scan.WithExtra(extra),
		scan.WithPrecision(precision),
	}
	if *reportEvery != scan.DefaultReportEvery {
		opts = append(opts, scan.WithReportEvery(*reportEvery))
	}

	started := time.Now()
	result, err := scan.Scan(ctx, axes, metric, opts...)
	if err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	elapsed := time.Since(started)
	log.Printf("scan complete: %d points in %s", result.Len(), elapsed.Round(time.Millisecond))

	if err := writeCSV(*output, axes, result); err != nil {
		log.Fatalf("writing CSV: %v", err)
	}

	if *dbFile != "" || *plotFile != "" {
		run := buildRun(*label, *metricName, axes, result, started, elapsed)

		if *dbFile != "" {
			store, err := scanstore.Open(*dbFile)
			if err != nil {
				log.Fatalf("opening run database: %v", err)
			}
			defer store.Close()
			if err := store.SaveRun(run); err != nil {
				log.Fatalf("recording run: %v", err)
			}
			log.Printf("recorded run %s", run.RunID)
		}

		if *plotFile != "" {
			if err := monitor.SavePNG(run, *plotFile); err != nil {
				log.Fatalf("rendering plot: %v", err)
			}
			log.Printf("wrote plot to %s", *plotFile)
		}
	}
}

// writeCSV emits one row per grid point in enumeration order: the axis
// coordinates followed by the metric value.
func writeCSV(path string, axes []scan.Axis, result *scan.Result) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	defer w.Flush()

	header := make([]string, 0, len(axes)+1)
	for _, ax := range axes {
		header = append(header, ax.Name())
	}
	header = append(header, "value")
	if err := w.Write(header); err != nil {
		return err
	}

	flat := result.Flat()
	row := make([]string, len(axes)+1)
	for i, v := range flat {
		idx := result.Unravel(i)
		for d, ax := range axes {
			row[d] = strconv.FormatFloat(ax.At(idx[d]), 'g', -1, 64)
		}
		row[len(axes)] = strconv.FormatFloat(v, 'g', -1, 64)
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func buildRun(label, metricName string, axes []scan.Axis, result *scan.Result, started time.Time, elapsed time.Duration) *scanstore.Run {
	summaries := make([]scan.AxisSummary, len(axes))
	for i, ax := range axes {
		summaries[i] = scan.AxisSummary{Name: ax.Name(), Len: ax.Len(), Fixed: ax.IsFixed()}
	}
	completed := started.Add(elapsed)
	return &scanstore.Run{
		Label:       label,
		Metric:      metricName,
		Status:      string(scan.StatusComplete),
		Axes:        summaries,
		Shape:       result.Shape(),
		TotalPoints: result.Len(),
		StartedAt:   &started,
		CompletedAt: &completed,
		Values:      result.Flat(),
	}
}
