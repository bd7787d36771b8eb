package stats_test

import (
	"math"
	"testing"

	"github.com/gkobilansky/variant-goat/internal/stats"
)

func TestWilsonInterval(t *testing.T) {
	tests := []struct {
		name              string
		successes, trials int64
		lowMin, lowMax    float64
		highMin, highMax  float64
	}{
		{"half", 50, 100, 0.38, 0.42, 0.58, 0.62},
		{"low rate", 5, 100, 0.01, 0.03, 0.09, 0.13},
		{"high rate", 95, 100, 0.87, 0.91, 0.97, 0.99},
		{"no successes", 0, 100, 0, 0, 0.01, 0.05},
		{"all successes", 100, 100, 0.95, 0.99, 0.99, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lower, upper := stats.WilsonInterval(tt.successes, tt.trials, 0.95)
			if lower < tt.lowMin || lower > tt.lowMax {
				t.Errorf("lower bound %f not in [%f, %f]", lower, tt.lowMin, tt.lowMax)
			}
			if upper < tt.highMin || upper > tt.highMax {
				t.Errorf("upper bound %f not in [%f, %f]", upper, tt.highMin, tt.highMax)
			}
		})
	}
}

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("got (%f, %f), want (0, 0)", lower, upper)
	}
}

func TestWilsonInterval_SmallSampleIsWide(t *testing.T) {
	lower, upper := stats.WilsonInterval(5, 10, 0.95)
	if upper-lower < 0.3 {
		t.Errorf("interval width %f too narrow for small sample", upper-lower)
	}
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		want       float64
	}{
		{0.90, 1.645},
		{0.95, 1.96},
		{0.99, 2.576},
		{0.50, 0.674},
	}
	for _, tt := range tests {
		if z := stats.ZScore(tt.confidence); math.Abs(z-tt.want) > 0.01 {
			t.Errorf("ZScore(%f) = %f, want %f", tt.confidence, z, tt.want)
		}
	}
}
