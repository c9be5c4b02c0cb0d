package scan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RangeSpec defines a floating-point value range for an axis.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	step, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid step value %q: %w", parts[2], err)
	}

	if step <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %f", step)
	}

	return RangeSpec{Min: min, Max: max, Step: step}, nil
}

// GenerateRange generates float64 values from min to max (inclusive)
// stepping by step. Returns nil if min > max or step is not positive.
// The number of generated values is capped to keep a typo'd step from
// allocating an absurd axis.
func GenerateRange(min, max, step float64) []float64 {
	if step <= 0 {
		return nil
	}
	if min > max {
		return nil
	}

	const maxValues = 100000
	expectedCount := int((max-min)/step) + 1
	if expectedCount > maxValues || expectedCount < 0 {
		return nil
	}

	var result []float64
	for v := min; v <= max+step/1000; v += step {
		if len(result) >= maxValues {
			break
		}
		// Round to damp floating point accumulation over long ranges.
		rounded := math.Round(v*1e9) / 1e9
		if rounded <= max {
			result = append(result, rounded)
		}
	}
	return result
}

// ParseCSVFloat64s parses a comma-separated list of float64 values.
// Returns nil, nil for empty input strings; blank entries are skipped.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseAxis parses a "name=spec" string into an Axis. The spec is one of:
//
//	name=0.5          a fixed axis (single value, dimension length 1)
//	name=1,2,3        explicit values
//	name=0:1:0.25     a min:max:step range
//
// Which variant applies is decided by the spec syntax, not by sniffing the
// shape of parsed data.
func ParseAxis(s string) (Axis, error) {
	name, spec, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Axis{}, fmt.Errorf("invalid axis %q: expected name=spec", s)
	}
	spec = strings.TrimSpace(spec)

	switch {
	case strings.Contains(spec, ":"):
		rs, err := ParseRangeSpec(spec)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %q: %w", name, err)
		}
		vals := GenerateRange(rs.Min, rs.Max, rs.Step)
		if len(vals) == 0 {
			return Axis{}, fmt.Errorf("axis %q: range %q produces no values", name, spec)
		}
		return Values(name, vals...), nil

	case strings.Contains(spec, ","):
		vals, err := ParseCSVFloat64s(spec)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %q: %w", name, err)
		}
		if len(vals) == 0 {
			return Axis{}, fmt.Errorf("axis %q: no values in %q", name, spec)
		}
		return Values(name, vals...), nil

	default:
		v, err := strconv.ParseFloat(spec, 64)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %q: invalid value %q: %w", name, spec, err)
		}
		return Fixed(name, v), nil
	}
}
