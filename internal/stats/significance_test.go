package stats_test

import (
	"testing"

	"github.com/gkobilansky/variant-goat/internal/stats"
)

func TestSignificanceTest_ClearWinner(t *testing.T) {
	// 10% vs 5% over 1000 views each
	if c := stats.SignificanceTest(100, 1000, 50, 1000); c < 0.95 {
		t.Errorf("expected confidence > 0.95, got %f", c)
	}
}

func TestSignificanceTest_EqualRates(t *testing.T) {
	if c := stats.SignificanceTest(50, 1000, 50, 1000); c > 0.60 {
		t.Errorf("expected confidence < 0.60 for equal rates, got %f", c)
	}
}

func TestSignificanceTest_SmallSample(t *testing.T) {
	if c := stats.SignificanceTest(5, 20, 2, 20); c > 0.95 {
		t.Errorf("expected lower confidence for small sample, got %f", c)
	}
}

func TestSignificanceTest_MissingData(t *testing.T) {
	if c := stats.SignificanceTest(0, 0, 0, 0); c != 0.5 {
		t.Errorf("got %f, want 0.5 with no views", c)
	}
	if c := stats.SignificanceTest(10, 100, 0, 0); c != 0.5 {
		t.Errorf("got %f, want 0.5 when one side has no views", c)
	}
}
