package scan

import (
	"github.com/banshee-data/gridscan/internal/monitoring"
	"github.com/banshee-data/gridscan/internal/timeutil"
)

// DefaultReportEvery is the default progress reporting cadence in points.
const DefaultReportEvery = 500

// Precision selects the floating-point precision the result array is
// validated against at assembly time.
type Precision int

const (
	// Float64 accepts any metric value. The default.
	Float64 Precision = iota
	// Float32 rejects finite values whose magnitude exceeds the float32
	// range. Validation happens once, after all points have been
	// evaluated; see the package notes on fail-late assembly.
	Float32
)

type options struct {
	extra       Args
	precision   Precision
	reportEvery int
	clock       timeutil.Clock
	logf        func(format string, v ...interface{})
	onPoint     func(done, total int)
}

// Option configures a scan.
type Option func(*options)

// WithExtra supplies a fixed argument map passed unchanged to every metric
// invocation, alongside the per-point axis values.
func WithExtra(extra Args) Option {
	return func(o *options) { o.extra = extra }
}

// WithPrecision sets the floating-point precision the assembled result is
// validated against.
func WithPrecision(p Precision) Option {
	return func(o *options) { o.precision = p }
}

// WithReportEvery sets the progress reporting cadence in points. Zero or
// negative disables progress output entirely.
func WithReportEvery(n int) Option {
	return func(o *options) { o.reportEvery = n }
}

// WithClock replaces the wall clock used for progress timing.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogf replaces the progress log sink for this scan only.
func WithLogf(f func(format string, v ...interface{})) Option {
	return func(o *options) {
		if f != nil {
			o.logf = f
		}
	}
}

// WithOnPoint installs an observer called after each completed point with
// the number of points done and the total. Used by the async runner to
// publish completion counts; the observer must be cheap.
func WithOnPoint(f func(done, total int)) Option {
	return func(o *options) { o.onPoint = f }
}

func applyOptions(opts []Option) options {
	o := options{
		precision:   Float64,
		reportEvery: DefaultReportEvery,
		clock:       timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logf == nil {
		o.logf = monitoring.Logf
	}
	return o
}
