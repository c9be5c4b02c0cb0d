// Package monitor provides the HTTP interface for driving scans: starting
// and stopping runs, polling progress, browsing persisted results, and a
// couple of debug visualisation endpoints.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/gridscan/internal/metrics"
	"github.com/banshee-data/gridscan/internal/scan"
	"github.com/banshee-data/gridscan/internal/scanstore"
)

// Server handles the HTTP interface for the scan service.
type Server struct {
	address  string
	runner   *scan.Runner
	store    *scanstore.Store
	registry *metrics.Registry
	server   *http.Server
}

// Config contains configuration options for the server.
type Config struct {
	Address  string
	Runner   *scan.Runner
	Store    *scanstore.Store
	Registry *metrics.Registry
}

// NewServer creates a server with the provided configuration. Store may be
// nil, in which case persistence endpoints report service unavailable.
func NewServer(config Config) *Server {
	s := &Server{
		address:  config.Address,
		runner:   config.Runner,
		store:    config.Store,
		registry: config.Registry,
	}
	if s.registry == nil {
		s.registry = metrics.DefaultRegistry()
	}

	s.server = &http.Server{
		Addr:    s.address,
		Handler: s.setupRoutes(),
	}
	return s
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scan/start", s.handleScanStart)
	mux.HandleFunc("/api/scan/status", s.handleScanStatus)
	mux.HandleFunc("/api/scan/stop", s.handleScanStop)
	mux.HandleFunc("/api/scan/runs", s.handleListRuns)
	mux.HandleFunc("/api/scan/result", s.handleResult)
	mux.HandleFunc("/api/metrics", s.handleListMetrics)
	mux.HandleFunc("/debug/chart", s.handleResultChart)
	mux.HandleFunc("/debug/plot.png", s.handleResultPNG)
	if s.store != nil {
		s.store.AttachAdminRoutes(mux)
	}
	return mux
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
// when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RangeRequest describes an inclusive min..max range with a step.
type RangeRequest struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// AxisRequest describes one axis of a requested scan. Exactly one of
// Value, Values or Range must be set.
type AxisRequest struct {
	Name   string        `json:"name"`
	Value  *float64      `json:"value,omitempty"`
	Values []float64     `json:"values,omitempty"`
	Range  *RangeRequest `json:"range,omitempty"`
}

// ScanRequest is the JSON body accepted by the scan start endpoint.
// Metric names a registered metric; Remote instead points the scan at an
// external evaluation service.
type ScanRequest struct {
	Label       string                 `json:"label,omitempty"`
	Metric      string                 `json:"metric,omitempty"`
	Remote      string                 `json:"remote,omitempty"`
	Axes        []AxisRequest          `json:"axes"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
	ReportEvery int                    `json:"report_every,omitempty"`
	Precision   string                 `json:"precision,omitempty"`
}

// ToSpec resolves the request against a metric registry into a runnable
// spec. It is used both by the start handler and by the CLI's -config
// loader.
func (req *ScanRequest) ToSpec(reg *metrics.Registry) (scan.RunSpec, error) {
	var fn scan.Metric
	metricName := req.Metric
	if req.Remote != "" {
		fn = metrics.Remote(nil, req.Remote)
		if metricName == "" {
			metricName = "remote"
		}
	} else {
		def, ok := reg.Get(req.Metric)
		if !ok {
			return scan.RunSpec{}, fmt.Errorf("unknown metric %q", req.Metric)
		}
		fn = def.Fn
	}

	axes, err := BuildAxes(req.Axes)
	if err != nil {
		return scan.RunSpec{}, err
	}
	if err := scan.ValidateAxes(axes); err != nil {
		return scan.RunSpec{}, err
	}

	precision := scan.Float64
	switch req.Precision {
	case "", "float64":
	case "float32":
		precision = scan.Float32
	default:
		return scan.RunSpec{}, fmt.Errorf("unknown precision %q", req.Precision)
	}

	return scan.RunSpec{
		Label:       req.Label,
		MetricName:  metricName,
		Axes:        axes,
		Metric:      fn,
		Extra:       req.Extra,
		ReportEvery: req.ReportEvery,
		Precision:   precision,
	}, nil
}

// BuildAxes converts axis requests into scan axes.
func BuildAxes(reqs []AxisRequest) ([]scan.Axis, error) {
	axes := make([]scan.Axis, 0, len(reqs))
	for _, ar := range reqs {
		set := 0
		if ar.Value != nil {
			set++
		}
		if len(ar.Values) > 0 {
			set++
		}
		if ar.Range != nil {
			set++
		}
		if set != 1 {
			return nil, fmt.Errorf("axis %q: exactly one of value, values or range must be set", ar.Name)
		}
		switch {
		case ar.Value != nil:
			axes = append(axes, scan.Fixed(ar.Name, *ar.Value))
		case len(ar.Values) > 0:
			axes = append(axes, scan.Values(ar.Name, ar.Values...))
		default:
			vals := scan.GenerateRange(ar.Range.Min, ar.Range.Max, ar.Range.Step)
			if len(vals) == 0 {
				return nil, fmt.Errorf("axis %q: range produces no values", ar.Name)
			}
			axes = append(axes, scan.Values(ar.Name, vals...))
		}
	}
	return axes, nil
}

// handleScanStart starts a scan run in the background.
func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	spec, err := req.ToSpec(s.registry)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives this request, so it must not inherit the request
	// context.
	if err := s.runner.Start(context.Background(), spec); err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}

	s.writeJSON(w, map[string]string{
		"status": "started",
		"run_id": s.runner.State().RunID,
	})
}

// handleScanStatus returns the current run state.
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.runner.State())
}

// handleScanStop cancels a running scan.
func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.runner.Stop()
	s.writeJSON(w, map[string]string{"status": "stopped"})
}

// handleListRuns lists persisted runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*scanstore.Run{}
	}
	s.writeJSON(w, runs)
}

// handleResult returns a persisted run (with values) by run_id, or the
// in-memory result of the last completed run when run_id is omitted.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if runID := r.URL.Query().Get("run_id"); runID != "" {
		if s.store == nil {
			s.writeJSONError(w, http.StatusServiceUnavailable, "run store not configured")
			return
		}
		run, err := s.store.GetRun(runID)
		if err != nil {
			s.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, run)
		return
	}

	result, ok := s.runner.Result()
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "no completed run")
		return
	}
	state := s.runner.State()
	s.writeJSON(w, &scanstore.Run{
		RunID:       state.RunID,
		Label:       state.Label,
		Metric:      state.Metric,
		Status:      string(state.Status),
		Axes:        state.Axes,
		Shape:       result.Shape(),
		TotalPoints: result.Len(),
		StartedAt:   state.StartedAt,
		CompletedAt: state.CompletedAt,
		Values:      result.Flat(),
	})
}

// handleListMetrics lists the registered metrics.
func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.registry.List())
}
