package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p50 even", []float64{1, 2, 3, 4}, 0.5, 2.5},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.9},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestEscapeDistribution(t *testing.T) {
	d := EscapeDistribution([]float64{10, 30, 20, 40})

	if math.Abs(d.Mean-25) > 0.001 {
		t.Errorf("mean = %v, want 25", d.Mean)
	}
	if math.Abs(d.Std-math.Sqrt(125)) > 0.001 {
		t.Errorf("std = %v, want %v", d.Std, math.Sqrt(125))
	}
	if math.Abs(d.P50-25) > 0.001 {
		t.Errorf("p50 = %v, want 25", d.P50)
	}
	if math.Abs(d.P10-13) > 0.001 {
		t.Errorf("p10 = %v, want 13", d.P10)
	}
	if math.Abs(d.P90-37) > 0.001 {
		t.Errorf("p90 = %v, want 37", d.P90)
	}
}

func TestEscapeDistributionEmpty(t *testing.T) {
	if d := EscapeDistribution(nil); d != (Distribution{}) {
		t.Errorf("empty input should return zeros, got %+v", d)
	}
}
