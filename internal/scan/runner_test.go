package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, r *Runner, want Status) RunState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state := r.State()
		if state.Status == want {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner never reached status %q (last: %q)", want, r.State().Status)
	return RunState{}
}

type captureRecorder struct {
	state  RunState
	result *Result
	calls  int
}

func (c *captureRecorder) RecordRun(state RunState, result *Result) error {
	c.state = state
	c.result = result
	c.calls++
	return nil
}

func TestRunnerCompletes(t *testing.T) {
	rec := &captureRecorder{}
	r := NewRunner(rec)

	spec := RunSpec{
		Label:      "smoke",
		MetricName: "product",
		Axes:       []Axis{Values("a", 1, 2), Values("b", 1, 2, 3)},
		Metric: func(pt Point, _ Args) (float64, error) {
			return pt["a"] * pt["b"], nil
		},
		ReportEvery: -1,
	}
	require.NoError(t, r.Start(context.Background(), spec))

	state := waitForStatus(t, r, StatusComplete)
	assert.NotEmpty(t, state.RunID)
	assert.Equal(t, "smoke", state.Label)
	assert.Equal(t, "product", state.Metric)
	assert.Equal(t, 6, state.TotalPoints)
	assert.Equal(t, 6, state.CompletedPoints)
	require.NotNil(t, state.StartedAt)
	require.NotNil(t, state.CompletedAt)

	res, ok := r.Result()
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, res.Shape())
	assert.Equal(t, 6.0, res.At(1, 2))

	assert.Equal(t, 1, rec.calls)
	require.NotNil(t, rec.result)
	assert.Equal(t, state.RunID, rec.state.RunID)
}

func TestRunnerRejectsConcurrentStart(t *testing.T) {
	r := NewRunner(nil)
	release := make(chan struct{})

	spec := RunSpec{
		Axes: []Axis{Values("a", 1, 2)},
		Metric: func(Point, Args) (float64, error) {
			<-release
			return 0, nil
		},
		ReportEvery: -1,
	}
	require.NoError(t, r.Start(context.Background(), spec))

	err := r.Start(context.Background(), spec)
	assert.Error(t, err)

	close(release)
	waitForStatus(t, r, StatusComplete)
}

func TestRunnerStop(t *testing.T) {
	r := NewRunner(nil)
	started := make(chan struct{}, 1)

	spec := RunSpec{
		Axes: []Axis{Values("a", GenerateRange(1, 100, 1)...)},
		Metric: func(Point, Args) (float64, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			time.Sleep(time.Millisecond)
			return 0, nil
		},
		ReportEvery: -1,
	}
	require.NoError(t, r.Start(context.Background(), spec))

	<-started
	r.Stop()

	state := waitForStatus(t, r, StatusError)
	assert.Contains(t, state.Error, "cancelled")
	assert.Less(t, state.CompletedPoints, state.TotalPoints)

	_, ok := r.Result()
	assert.False(t, ok)
}

func TestRunnerValidatesSpec(t *testing.T) {
	r := NewRunner(nil)

	err := r.Start(context.Background(), RunSpec{
		Axes:   []Axis{Values("a")},
		Metric: func(Point, Args) (float64, error) { return 0, nil },
	})
	assert.ErrorIs(t, err, ErrEmptyAxis)
	assert.Equal(t, StatusIdle, r.State().Status)

	err = r.Start(context.Background(), RunSpec{Axes: []Axis{Values("a", 1)}})
	assert.Error(t, err)
}

func TestRunnerErrorRun(t *testing.T) {
	r := NewRunner(nil)

	spec := RunSpec{
		Axes: []Axis{Values("a", 1, 2, 3)},
		Metric: func(pt Point, _ Args) (float64, error) {
			if pt["a"] == 2 {
				return 0, assert.AnError
			}
			return 0, nil
		},
		ReportEvery: -1,
	}
	require.NoError(t, r.Start(context.Background(), spec))

	state := waitForStatus(t, r, StatusError)
	assert.Contains(t, state.Error, "metric failed at point 1/3")
}
