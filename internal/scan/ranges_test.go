package scan

import (
	"math"
	"testing"
)

func TestParseRangeSpec(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		want      RangeSpec
		expectErr bool
	}{
		{"valid", "0:1:0.1", RangeSpec{0, 1, 0.1}, false},
		{"with_spaces", " 0.5 : 2 : 0.25 ", RangeSpec{0.5, 2, 0.25}, false},
		{"negative_bounds", "-2:-1:0.5", RangeSpec{-2, -1, 0.5}, false},
		{"two_parts", "0:1", RangeSpec{}, true},
		{"four_parts", "0:1:0.1:2", RangeSpec{}, true},
		{"bad_min", "x:1:0.1", RangeSpec{}, true},
		{"bad_max", "0:y:0.1", RangeSpec{}, true},
		{"bad_step", "0:1:z", RangeSpec{}, true},
		{"zero_step", "0:1:0", RangeSpec{}, true},
		{"negative_step", "0:1:-0.1", RangeSpec{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRangeSpec(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("spec = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestGenerateRange(t *testing.T) {
	testCases := []struct {
		name           string
		min, max, step float64
		want           []float64
	}{
		{"simple", 0, 1, 0.25, []float64{0, 0.25, 0.5, 0.75, 1}},
		{"single_value", 5, 5, 1, []float64{5}},
		{"inverted", 1, 0, 0.1, nil},
		{"zero_step", 0, 1, 0, nil},
		{"negative_step", 0, 1, -1, nil},
		{"accumulating_step", 0.005, 0.03, 0.005, []float64{0.005, 0.01, 0.015, 0.02, 0.025, 0.03}},
		{"negative_range", -1, 1, 0.5, []float64{-1, -0.5, 0, 0.5, 1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := GenerateRange(tc.min, tc.max, tc.step)
			if len(got) != len(tc.want) {
				t.Fatalf("values = %v, want %v", got, tc.want)
			}
			for i := range got {
				if math.Abs(got[i]-tc.want[i]) > 1e-9 {
					t.Errorf("value %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestGenerateRangeCapsValueCount(t *testing.T) {
	if got := GenerateRange(0, 1e9, 1e-3); got != nil {
		t.Errorf("expected nil for oversized range, got %d values", len(got))
	}
}

func TestParseCSVFloat64s(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		want      []float64
		expectErr bool
	}{
		{"empty", "", nil, false},
		{"single", "1.5", []float64{1.5}, false},
		{"multiple", "1.0,2.5,3.0", []float64{1.0, 2.5, 3.0}, false},
		{"spaces", " 1.0 , 2.5 ", []float64{1.0, 2.5}, false},
		{"scientific", "1e-3,2e2", []float64{0.001, 200}, false},
		{"blank_entries", "1.0,,3.0,", []float64{1.0, 3.0}, false},
		{"invalid", "1.0,abc", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCSVFloat64s(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Errorf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("values = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("value %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}
