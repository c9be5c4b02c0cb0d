package scan

import (
	"context"
	"fmt"
)

// Point maps each axis name to the value assigned to it for one grid point.
// A fresh Point is built for every invocation; the metric may retain it.
type Point map[string]float64

// Args is the fixed argument map handed unchanged to every metric
// invocation.
type Args map[string]interface{}

// Metric is the caller-supplied function evaluated once per grid point.
// It receives the point's axis-name-to-value mapping and the scan's fixed
// arguments, and returns one numeric value. Any error aborts the scan
// immediately: no further points are evaluated and no result is returned.
type Metric func(point Point, extra Args) (float64, error)

// Scan evaluates metric over the Cartesian product of the axes and returns
// the results as a dense array with one dimension per axis, in the axes'
// order. Enumeration is row-major: the last axis's value changes on every
// successive invocation, the first only after all inner axes have cycled.
// Flattening the result in row-major order reproduces the invocation order
// exactly.
//
// The scan is serial and synchronous; the metric is treated as an opaque
// blocking call. ctx is checked between points only, never interrupting an
// in-flight metric invocation, and a cancelled context aborts the scan
// with ctx.Err(). Either the complete grid is returned or nothing is.
func Scan(ctx context.Context, axes []Axis, metric Metric, opts ...Option) (*Result, error) {
	if metric == nil {
		return nil, fmt.Errorf("scan: metric must not be nil")
	}
	if err := ValidateAxes(axes); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	names := make([]string, len(axes))
	shape := make([]int, len(axes))
	total := 1
	for i, ax := range axes {
		names[i] = ax.name
		shape[i] = ax.Len()
		total *= ax.Len()
	}

	// The product is enumerated with an odometer over per-axis indices so
	// memory stays bounded by the result buffer regardless of
	// dimensionality; the full set of combinations is never materialized.
	flat := make([]float64, 0, total)
	idx := make([]int, len(axes))
	prog := newProgressTracker(o.clock, o.logf, o.reportEvery, total)

	for n := 0; n < total; n++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scan: cancelled at point %d/%d: %w", n, total, ctx.Err())
		default:
		}

		point := make(Point, len(axes))
		for i, ax := range axes {
			point[ax.name] = ax.values[idx[i]]
		}

		v, err := metric(point, o.extra)
		if err != nil {
			return nil, fmt.Errorf("scan: metric failed at point %d/%d: %w", n, total, err)
		}
		flat = append(flat, v)

		if o.onPoint != nil {
			o.onPoint(n+1, total)
		}
		prog.observe(n)

		// Advance the odometer, last axis fastest.
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < axes[i].Len() {
				break
			}
			idx[i] = 0
		}
	}

	return assemble(names, shape, flat, o.precision)
}

// Scan1D scans a single named axis over the given values. It is the
// explicit shorthand for the common one-dimensional case; the result has
// shape (len(values),).
func Scan1D(ctx context.Context, name string, values []float64, metric Metric, opts ...Option) (*Result, error) {
	return Scan(ctx, []Axis{Values(name, values...)}, metric, opts...)
}
