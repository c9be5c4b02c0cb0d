package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gridscan/internal/monitoring"
)

// Status represents the current state of a scan run.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// AxisSummary is the JSON-friendly description of one axis of a run.
type AxisSummary struct {
	Name  string `json:"name"`
	Len   int    `json:"len"`
	Fixed bool   `json:"fixed"`
}

// RunSpec describes one scan run to execute asynchronously.
type RunSpec struct {
	Label       string
	MetricName  string
	Axes        []Axis
	Metric      Metric
	Extra       Args
	ReportEvery int
	Precision   Precision
}

// RunState holds the observable state of the current (or last) run.
type RunState struct {
	RunID           string        `json:"run_id,omitempty"`
	Label           string        `json:"label,omitempty"`
	Metric          string        `json:"metric,omitempty"`
	Status          Status        `json:"status"`
	Axes            []AxisSummary `json:"axes,omitempty"`
	TotalPoints     int           `json:"total_points"`
	CompletedPoints int           `json:"completed_points"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// Recorder persists a finished run. Implementations must tolerate being
// called from the runner's background goroutine.
type Recorder interface {
	RecordRun(state RunState, result *Result) error
}

// Runner executes scans asynchronously, one at a time, exposing progress
// snapshots for polling. The scan itself stays serial; the runner only
// moves it off the caller's goroutine and adds cancellation between
// points.
type Runner struct {
	recorder Recorder

	mu     sync.RWMutex
	state  RunState
	result *Result
	cancel context.CancelFunc
}

// NewRunner creates a runner. recorder may be nil, in which case finished
// runs are held in memory only.
func NewRunner(recorder Recorder) *Runner {
	return &Runner{
		recorder: recorder,
		state:    RunState{Status: StatusIdle},
	}
}

// Start begins a new scan run in the background. It fails if a run is
// already in progress or the spec is invalid; validation happens before
// any state changes so a rejected request leaves the previous run's state
// visible.
func (r *Runner) Start(ctx context.Context, spec RunSpec) error {
	if spec.Metric == nil {
		return fmt.Errorf("scan: run spec has no metric")
	}
	if err := ValidateAxes(spec.Axes); err != nil {
		return err
	}

	total := 1
	summaries := make([]AxisSummary, len(spec.Axes))
	for i, ax := range spec.Axes {
		total *= ax.Len()
		summaries[i] = AxisSummary{Name: ax.Name(), Len: ax.Len(), Fixed: ax.IsFixed()}
	}

	r.mu.Lock()
	if r.state.Status == StatusRunning {
		r.mu.Unlock()
		return fmt.Errorf("scan already in progress")
	}

	now := time.Now()
	r.state = RunState{
		RunID:       uuid.New().String(),
		Label:       spec.Label,
		Metric:      spec.MetricName,
		Status:      StatusRunning,
		Axes:        summaries,
		TotalPoints: total,
		StartedAt:   &now,
	}
	r.result = nil

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(runCtx, spec)
	return nil
}

// Stop cancels a running scan. The scan aborts at the next point boundary.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// State returns a copy of the current run state.
func (r *Runner) State() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.state
	axes := make([]AxisSummary, len(r.state.Axes))
	copy(axes, r.state.Axes)
	state.Axes = axes
	return state
}

// Result returns the completed result of the last run, if any.
func (r *Runner) Result() (*Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result, r.result != nil
}

func (r *Runner) run(ctx context.Context, spec RunSpec) {
	opts := []Option{
		WithExtra(spec.Extra),
		WithPrecision(spec.Precision),
		WithOnPoint(func(done, total int) {
			r.mu.Lock()
			r.state.CompletedPoints = done
			r.mu.Unlock()
		}),
	}
	if spec.ReportEvery != 0 {
		opts = append(opts, WithReportEvery(spec.ReportEvery))
	}

	result, err := Scan(ctx, spec.Axes, spec.Metric, opts...)

	now := time.Now()
	r.mu.Lock()
	r.state.CompletedAt = &now
	if err != nil {
		r.state.Status = StatusError
		r.state.Error = err.Error()
		r.mu.Unlock()
		monitoring.Logf("[scan] run %s failed: %v", r.state.RunID, err)
		return
	}
	r.state.Status = StatusComplete
	r.result = result
	state := r.state
	r.mu.Unlock()

	monitoring.Logf("[scan] run %s complete: %d points", state.RunID, result.Len())

	if r.recorder != nil {
		if recErr := r.recorder.RecordRun(state, result); recErr != nil {
			monitoring.Logf("[scan] WARNING: failed to record run %s: %v", state.RunID, recErr)
		}
	}
}
