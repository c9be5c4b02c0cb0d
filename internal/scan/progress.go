package scan

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/gridscan/internal/timeutil"
)

// progressTracker reports elapsed time and a projection of remaining time
// at fixed point-count intervals. Timestamps are taken only at reporting
// boundaries, so the instrumentation adds nothing to the measured per-point
// cost between them. The projection uses the mean per-point cost over the
// most recent two reporting intervals rather than the whole run, staying
// responsive when the metric's cost drifts.
type progressTracker struct {
	clock  timeutil.Clock
	logf   func(format string, v ...interface{})
	every  int
	total  int
	stamps []time.Time
}

func newProgressTracker(clock timeutil.Clock, logf func(string, ...interface{}), every, total int) *progressTracker {
	p := &progressTracker{
		clock: clock,
		logf:  logf,
		every: every,
		total: total,
	}
	if every > 0 {
		p.stamps = append(p.stamps, clock.Now())
	}
	return p
}

// observe records completion of the n-th point (0-based). On reporting
// boundaries after the first point it appends a timestamp and logs the
// estimate.
func (p *progressTracker) observe(n int) {
	if p.every <= 0 || n == 0 || n%p.every != 0 {
		return
	}
	p.stamps = append(p.stamps, p.clock.Now())
	p.report(n)
}

// report logs elapsed time, average per-point cost, and projected
// remaining time. Progress output is advisory only: a panicking log sink
// must not abort the scan.
func (p *progressTracker) report(n int) {
	defer func() {
		_ = recover()
	}()

	window := p.stamps
	if len(window) > 3 {
		window = window[len(window)-3:]
	}
	diffs := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		diffs = append(diffs, window[i].Sub(window[i-1]).Seconds())
	}
	if len(diffs) == 0 {
		return
	}

	perPoint := stat.Mean(diffs, nil) / float64(p.every)
	remaining := time.Duration(perPoint * float64(p.total-n-1) * float64(time.Second))
	elapsed := p.stamps[len(p.stamps)-1].Sub(p.stamps[0])

	p.logf("[scan] %d/%d points; elapsed %s, avg %.3f ms/pt, remaining ~%s",
		n, p.total, elapsed.Round(time.Second), perPoint*1000, remaining.Round(time.Second))
}
