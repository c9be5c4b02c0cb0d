// Package scan implements an N-dimensional outer-product parameter scan:
// it enumerates the Cartesian product of a set of named axes in row-major
// order (last axis fastest), invokes a caller-supplied metric once per grid
// point, and collects the results into a dense N-dimensional array whose
// layout matches the enumeration order. Progress and estimated remaining
// time are reported from a trailing window of timing samples.
package scan

import (
	"errors"
	"fmt"
)

// Sentinel errors for axis configuration problems. All of them are detected
// before the first metric invocation.
var (
	// ErrNoAxes indicates a scan was requested with no axes at all.
	ErrNoAxes = errors.New("scan: at least one axis is required")
	// ErrEmptyAxisName indicates an axis without a name.
	ErrEmptyAxisName = errors.New("scan: axis name must not be empty")
	// ErrDuplicateAxis indicates two axes sharing the same name.
	ErrDuplicateAxis = errors.New("scan: duplicate axis name")
	// ErrEmptyAxis indicates an axis with zero values. The product of axis
	// lengths would be zero; surfacing this beats returning an empty array
	// masquerading as success.
	ErrEmptyAxis = errors.New("scan: axis has no values")
)

// Axis is one named dimension of a parameter grid. An axis is either fixed
// (a single value, the dimension is not varied but still contributes a
// length-1 dimension to the output) or a list of values to scan. Which of
// the two is decided explicitly by the constructor used, never inferred
// from the shape of the input.
type Axis struct {
	name   string
	values []float64
	fixed  bool
}

// Fixed returns an axis pinned to a single value. The output array still
// carries a dimension of length 1 for it, so axis order and output
// dimension order stay aligned regardless of which axes are varied.
func Fixed(name string, value float64) Axis {
	return Axis{name: name, values: []float64{value}, fixed: true}
}

// Values returns an axis that scans the given values in order. The slice
// is copied; the axis is immutable afterwards.
func Values(name string, values ...float64) Axis {
	vs := make([]float64, len(values))
	copy(vs, values)
	return Axis{name: name, values: vs}
}

// Name returns the axis identifier, used as the keyword under which the
// axis value is bound in each point passed to the metric.
func (a Axis) Name() string { return a.name }

// Len returns the number of values on the axis, i.e. the length of the
// output dimension it maps to.
func (a Axis) Len() int { return len(a.values) }

// IsFixed reports whether the axis was constructed as a fixed value.
func (a Axis) IsFixed() bool { return a.fixed }

// At returns the i-th axis value.
func (a Axis) At(i int) float64 { return a.values[i] }

// Floats returns a copy of the axis values in scan order.
func (a Axis) Floats() []float64 {
	vs := make([]float64, len(a.values))
	copy(vs, a.values)
	return vs
}

// ValidateAxes checks an axis list for configuration errors: empty list,
// missing or duplicate names, zero-length axes. It is called by Scan before
// any metric invocation and exported so drivers can fail fast before
// committing to a run.
func ValidateAxes(axes []Axis) error {
	if len(axes) == 0 {
		return ErrNoAxes
	}
	seen := make(map[string]struct{}, len(axes))
	for i, ax := range axes {
		if ax.name == "" {
			return fmt.Errorf("%w (axis %d)", ErrEmptyAxisName, i)
		}
		if _, dup := seen[ax.name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateAxis, ax.name)
		}
		seen[ax.name] = struct{}{}
		if len(ax.values) == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyAxis, ax.name)
		}
	}
	return nil
}
