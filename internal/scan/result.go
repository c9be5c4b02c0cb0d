package scan

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Result is the dense N-dimensional array of metric values produced by a
// scan. Dimension i corresponds to axis i of the scan specification; the
// flat backing storage is row-major, so it equals the metric invocation
// order. A Result is immutable once returned.
type Result struct {
	names []string
	shape []int
	data  []float64
}

// assemble validates the flat results against the configured precision and
// wraps them. Precision is checked only here, after all invocations: an
// out-of-range value fails the whole scan rather than an individual point.
func assemble(names []string, shape []int, flat []float64, prec Precision) (*Result, error) {
	if prec == Float32 {
		for i, v := range flat {
			if !math.IsInf(v, 0) && math.Abs(v) > math.MaxFloat32 {
				return nil, fmt.Errorf("scan: value %g at point %d is not representable as float32", v, i)
			}
		}
	}
	return &Result{names: names, shape: shape, data: flat}, nil
}

// Names returns the axis names in dimension order.
func (r *Result) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Shape returns the per-dimension lengths.
func (r *Result) Shape() []int {
	out := make([]int, len(r.shape))
	copy(out, r.shape)
	return out
}

// NDim returns the number of dimensions.
func (r *Result) NDim() int { return len(r.shape) }

// Len returns the total number of grid points.
func (r *Result) Len() int { return len(r.data) }

// Flat returns a copy of the values in row-major (enumeration) order.
func (r *Result) Flat() []float64 {
	out := make([]float64, len(r.data))
	copy(out, r.data)
	return out
}

// Float32s returns the values in row-major order narrowed to float32.
// Callers that scanned with Float32 precision have already had the range
// validated at assembly.
func (r *Result) Float32s() []float32 {
	out := make([]float32, len(r.data))
	for i, v := range r.data {
		out[i] = float32(v)
	}
	return out
}

// At returns the value at the given per-dimension indices. It panics if
// the number of indices or any index is out of range, mirroring slice
// indexing.
func (r *Result) At(indices ...int) float64 {
	return r.data[r.flatIndex(indices)]
}

func (r *Result) flatIndex(indices []int) int {
	if len(indices) != len(r.shape) {
		panic(fmt.Sprintf("scan: got %d indices for %d-dimensional result", len(indices), len(r.shape)))
	}
	flat := 0
	for i, idx := range indices {
		if idx < 0 || idx >= r.shape[i] {
			panic(fmt.Sprintf("scan: index %d out of range [0,%d) for axis %q", idx, r.shape[i], r.names[i]))
		}
		flat = flat*r.shape[i] + idx
	}
	return flat
}

// Unravel converts a flat (row-major) index into per-dimension indices.
func (r *Result) Unravel(flat int) []int {
	if flat < 0 || flat >= len(r.data) {
		panic(fmt.Sprintf("scan: flat index %d out of range [0,%d)", flat, len(r.data)))
	}
	indices := make([]int, len(r.shape))
	for i := len(r.shape) - 1; i >= 0; i-- {
		indices[i] = flat % r.shape[i]
		flat /= r.shape[i]
	}
	return indices
}

// Min returns the smallest value in the grid.
func (r *Result) Min() float64 { return floats.Min(r.data) }

// Max returns the largest value in the grid.
func (r *Result) Max() float64 { return floats.Max(r.data) }

// ArgMin returns the per-dimension indices of the smallest value. For a
// likelihood-style metric this is the best-fit grid point.
func (r *Result) ArgMin() []int { return r.Unravel(floats.MinIdx(r.data)) }

// ArgMax returns the per-dimension indices of the largest value.
func (r *Result) ArgMax() []int { return r.Unravel(floats.MaxIdx(r.data)) }

// Mean returns the mean of all grid values.
func (r *Result) Mean() float64 { return stat.Mean(r.data, nil) }

// StdDev returns the sample standard deviation of all grid values.
func (r *Result) StdDev() float64 {
	if len(r.data) < 2 {
		return 0
	}
	return stat.StdDev(r.data, nil)
}
