package stats_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gkobilansky/variant-goat/internal/stats"
	"github.com/gkobilansky/variant-goat/internal/store"
	"github.com/gkobilansky/variant-goat/internal/testutil"
)

func experimentWith(a, b store.Variant) *store.Experiment {
	a.Key, b.Key = "A", "B"
	return &store.Experiment{ID: 1, Name: "hero", Status: store.StatusRunning, Variants: []store.Variant{a, b}}
}

func TestRatio_ZeroDenominator(t *testing.T) {
	if got := stats.Ratio(5, 0); got != 0 {
		t.Errorf("got %f, want 0", got)
	}
}

func TestCompute_RatesAndTotals(t *testing.T) {
	exp := experimentWith(
		store.Variant{Impressions: 100, Clicks: 20, Conversions: 10},
		store.Variant{Impressions: 100, Clicks: 30, Conversions: 20},
	)

	r := stats.Compute(exp, nil)

	if len(r.PerVariant) != 2 {
		t.Fatalf("got %d variants, want 2", len(r.PerVariant))
	}
	if r.PerVariant[0].CTR != 0.2 || r.PerVariant[0].ConversionRate != 0.1 {
		t.Errorf("got A ctr=%f rate=%f, want 0.2/0.1", r.PerVariant[0].CTR, r.PerVariant[0].ConversionRate)
	}
	if r.Totals.Impressions != 200 || r.Totals.Clicks != 50 || r.Totals.Conversions != 30 {
		t.Errorf("got totals %+v", r.Totals)
	}
	if math.Abs(r.Totals.CTR-0.25) > 1e-9 {
		t.Errorf("got total ctr %f, want 0.25", r.Totals.CTR)
	}
	if r.Leader != "B" {
		t.Errorf("got leader %s, want B", r.Leader)
	}
	for _, v := range r.PerVariant {
		if v.CILower >= v.ConversionRate || v.CIUpper <= v.ConversionRate {
			t.Errorf("variant %s: interval [%f, %f] does not bracket %f", v.VariantKey, v.CILower, v.CIUpper, v.ConversionRate)
		}
	}
}

func TestCompute_NoImpressions(t *testing.T) {
	r := stats.Compute(experimentWith(store.Variant{}, store.Variant{Clicks: 3}), nil)

	for _, v := range r.PerVariant {
		if v.CTR != 0 || v.ConversionRate != 0 || math.IsNaN(v.CTR) {
			t.Errorf("variant %s: got ctr=%f rate=%f, want 0", v.VariantKey, v.CTR, v.ConversionRate)
		}
	}
	if r.Totals.CTR != 0 || r.Totals.ConversionRate != 0 {
		t.Errorf("got totals %+v, want zero rates", r.Totals)
	}
	if r.Confidence != 0.5 || r.Confident {
		t.Errorf("got confidence %f, want 0.5 and not confident", r.Confidence)
	}
}

func TestLeader_TieBreaks(t *testing.T) {
	tests := []struct {
		name string
		vs   []stats.VariantMetrics
		want string
	}{
		{"higher rate", []stats.VariantMetrics{
			stats.ForVariant("A", 100, 0, 40), stats.ForVariant("B", 100, 0, 30)}, "A"},
		{"tie on rate, more impressions", []stats.VariantMetrics{
			stats.ForVariant("A", 100, 0, 10), stats.ForVariant("B", 200, 0, 20)}, "B"},
		{"full tie, lexical key", []stats.VariantMetrics{
			stats.ForVariant("B", 100, 0, 10), stats.ForVariant("A", 100, 0, 10)}, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stats.Leader(tt.vs)
			if !ok || got.VariantKey != tt.want {
				t.Errorf("got %s, want %s", got.VariantKey, tt.want)
			}
		})
	}

	if _, ok := stats.Leader(nil); ok {
		t.Error("expected no leader for empty list")
	}
}

func TestCompute_Segments(t *testing.T) {
	exp := experimentWith(store.Variant{Impressions: 3}, store.Variant{Impressions: 1})
	segs := []store.SegmentCount{
		{VariantKey: "B", DeviceType: "mobile", Impressions: 1},
		{VariantKey: "A", DeviceType: "mobile", Impressions: 2, Clicks: 1},
		{VariantKey: "A", DeviceType: "desktop", Impressions: 1},
	}

	r := stats.Compute(exp, segs)

	if len(r.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(r.Segments))
	}
	if r.Segments[0].DeviceType != "desktop" || r.Segments[1].DeviceType != "mobile" {
		t.Errorf("got segments %s,%s, want desktop,mobile", r.Segments[0].DeviceType, r.Segments[1].DeviceType)
	}
	mobile := r.Segments[1]
	if mobile.PerVariant[0].VariantKey != "A" || mobile.PerVariant[0].CTR != 0.5 {
		t.Errorf("got mobile A %+v, want ctr 0.5", mobile.PerVariant[0])
	}
	if mobile.Totals.Impressions != 3 {
		t.Errorf("got mobile impressions %d, want 3", mobile.Totals.Impressions)
	}
}

func TestAggregator_Metrics(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.CreateRunning(t, s, "hero", 50)
	testutil.Record(t, s, exp.ID, "A", store.EventView, 4)
	testutil.Record(t, s, exp.ID, "A", store.EventConversion, 1)

	agg := stats.NewAggregator(s, time.Second)
	r, err := agg.Metrics(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("failed to compute metrics: %v", err)
	}
	if r.PerVariant[0].ConversionRate != 0.25 {
		t.Errorf("got rate %f, want 0.25", r.PerVariant[0].ConversionRate)
	}
	if len(r.Segments) != 1 || r.Segments[0].DeviceType != "desktop" {
		t.Errorf("got segments %+v, want single desktop segment", r.Segments)
	}

	if _, err := agg.Metrics(context.Background(), 999); !store.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}
