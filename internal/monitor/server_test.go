package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/gridscan/internal/metrics"
	"github.com/banshee-data/gridscan/internal/scan"
	"github.com/banshee-data/gridscan/internal/scanstore"
)

func newTestServer(t *testing.T) (*Server, *scanstore.Store) {
	t.Helper()
	store, err := scanstore.Open(filepath.Join(t.TempDir(), "scans.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s := NewServer(Config{
		Address: "127.0.0.1:0",
		Runner:  scan.NewRunner(store),
		Store:   store,
	})
	return s, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decoding response %q: %v", w.Body.String(), err)
		}
	}
	return w
}

func waitForRunStatus(t *testing.T, h http.Handler, want scan.Status) scan.RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var state scan.RunState
		doJSON(t, h, http.MethodGet, "/api/scan/status", nil, &state)
		if state.Status == want {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run never reached status %q", want)
	return scan.RunState{}
}

func TestScanLifecycle(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	var started map[string]string
	w := doJSON(t, h, http.MethodPost, "/api/scan/start", ScanRequest{
		Label:  "grid",
		Metric: "sphere",
		Axes: []AxisRequest{
			{Name: "a", Values: []float64{0, 1}},
			{Name: "b", Range: &RangeRequest{Min: 0, Max: 2, Step: 1}},
		},
		ReportEvery: -1,
	}, &started)
	if w.Code != http.StatusOK {
		t.Fatalf("start returned %d: %s", w.Code, w.Body.String())
	}
	if started["run_id"] == "" {
		t.Fatal("start response missing run_id")
	}

	state := waitForRunStatus(t, h, scan.StatusComplete)
	if state.TotalPoints != 6 || state.CompletedPoints != 6 {
		t.Errorf("state = %+v, want 6/6 points", state)
	}

	// In-memory result.
	var run scanstore.Run
	w = doJSON(t, h, http.MethodGet, "/api/scan/result", nil, &run)
	if w.Code != http.StatusOK {
		t.Fatalf("result returned %d: %s", w.Code, w.Body.String())
	}
	if len(run.Values) != 6 {
		t.Fatalf("result has %d values, want 6", len(run.Values))
	}
	// a=1, b=2 is the last point: 1 + 4 = 5.
	if run.Values[5] != 5 {
		t.Errorf("last value = %v, want 5", run.Values[5])
	}

	// Persisted copy, via the recorder.
	var stored scanstore.Run
	w = doJSON(t, h, http.MethodGet, "/api/scan/result?run_id="+state.RunID, nil, &stored)
	if w.Code != http.StatusOK {
		t.Fatalf("stored result returned %d: %s", w.Code, w.Body.String())
	}
	if len(stored.Values) != 6 || stored.Values[5] != 5 {
		t.Errorf("stored values = %v", stored.Values)
	}

	var runs []*scanstore.Run
	doJSON(t, h, http.MethodGet, "/api/scan/runs", nil, &runs)
	if len(runs) != 1 || runs[0].RunID != state.RunID {
		t.Errorf("runs = %+v, want one run %s", runs, state.RunID)
	}
}

func TestScanStartValidation(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	testCases := []struct {
		name string
		req  ScanRequest
	}{
		{"unknown_metric", ScanRequest{Metric: "nope", Axes: []AxisRequest{{Name: "a", Values: []float64{1}}}}},
		{"no_axes", ScanRequest{Metric: "sphere"}},
		{"ambiguous_axis", ScanRequest{Metric: "sphere", Axes: []AxisRequest{
			{Name: "a", Value: float64Ptr(1), Values: []float64{1, 2}},
		}}},
		{"bad_range", ScanRequest{Metric: "sphere", Axes: []AxisRequest{
			{Name: "a", Range: &RangeRequest{Min: 0, Max: 1, Step: -1}},
		}}},
		{"bad_precision", ScanRequest{Metric: "sphere", Precision: "float16", Axes: []AxisRequest{
			{Name: "a", Values: []float64{1}},
		}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/api/scan/start", tc.req, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("start returned %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}

	w := doJSON(t, h, http.MethodGet, "/api/scan/start", nil, nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET start returned %d, want 405", w.Code)
	}
}

func TestScanStartConflict(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	release := make(chan struct{})
	s.registry.Register(&metrics.Definition{
		Name: "blocking",
		Fn: func(scan.Point, scan.Args) (float64, error) {
			<-release
			return 0, nil
		},
	})

	req := ScanRequest{
		Metric:      "blocking",
		Axes:        []AxisRequest{{Name: "a", Values: []float64{1, 2}}},
		ReportEvery: -1,
	}
	if w := doJSON(t, h, http.MethodPost, "/api/scan/start", req, nil); w.Code != http.StatusOK {
		t.Fatalf("first start returned %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/api/scan/start", req, nil); w.Code != http.StatusConflict {
		t.Errorf("second start returned %d, want 409", w.Code)
	}

	close(release)
	waitForRunStatus(t, h, scan.StatusComplete)
}

func TestScanStop(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	s.registry.Register(&metrics.Definition{
		Name: "slow",
		Fn: func(scan.Point, scan.Args) (float64, error) {
			time.Sleep(time.Millisecond)
			return 0, nil
		},
	})

	vals := make([]float64, 200)
	for i := range vals {
		vals[i] = float64(i)
	}
	req := ScanRequest{
		Metric:      "slow",
		Axes:        []AxisRequest{{Name: "a", Values: vals}},
		ReportEvery: -1,
	}
	if w := doJSON(t, h, http.MethodPost, "/api/scan/start", req, nil); w.Code != http.StatusOK {
		t.Fatalf("start returned %d", w.Code)
	}

	if w := doJSON(t, h, http.MethodPost, "/api/scan/stop", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("stop returned %d", w.Code)
	}

	state := waitForRunStatus(t, h, scan.StatusError)
	if !strings.Contains(state.Error, "cancelled") {
		t.Errorf("state error = %q, want cancellation", state.Error)
	}
}

func TestListMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	var defs []metrics.Definition
	w := doJSON(t, s.Handler(), http.MethodGet, "/api/metrics", nil, &defs)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics returned %d", w.Code)
	}
	if len(defs) != 4 {
		t.Errorf("got %d metrics, want 4", len(defs))
	}
}

func TestResultBeforeAnyRun(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	if w := doJSON(t, h, http.MethodGet, "/api/scan/result", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("result returned %d, want 404", w.Code)
	}
	if w := doJSON(t, h, http.MethodGet, "/api/scan/result?run_id=missing", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("result by ID returned %d, want 404", w.Code)
	}
}

func TestResultChart(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/scan/start", ScanRequest{
		Metric: "sphere",
		Axes: []AxisRequest{
			{Name: "a", Values: []float64{0, 1}},
			{Name: "b", Values: []float64{0, 1, 2}},
		},
		ReportEvery: -1,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start returned %d", w.Code)
	}
	waitForRunStatus(t, h, scan.StatusComplete)

	req := httptest.NewRequest(http.MethodGet, "/debug/chart", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("chart returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("chart content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("chart body does not look like an echarts page")
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/chart?run_id=missing", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("chart for unknown run returned %d, want 404", rec.Code)
	}
}

func TestScanStartRemoteMetric(t *testing.T) {
	eval := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Point map[string]float64 `json:"point"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"value": req.Point["x"] * 2})
	}))
	defer eval.Close()

	s, _ := newTestServer(t)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/scan/start", ScanRequest{
		Remote:      eval.URL,
		Axes:        []AxisRequest{{Name: "x", Values: []float64{1, 2, 3}}},
		ReportEvery: -1,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start returned %d: %s", w.Code, w.Body.String())
	}

	state := waitForRunStatus(t, h, scan.StatusComplete)
	if state.Metric != "remote" {
		t.Errorf("metric name = %q, want remote", state.Metric)
	}

	var run scanstore.Run
	doJSON(t, h, http.MethodGet, "/api/scan/result", nil, &run)
	want := []float64{2, 4, 6}
	if len(run.Values) != 3 {
		t.Fatalf("values = %v", run.Values)
	}
	for i, v := range run.Values {
		if v != want[i] {
			t.Errorf("value %d = %v, want %v", i, v, want[i])
		}
	}
}

func float64Ptr(v float64) *float64 { return &v }
