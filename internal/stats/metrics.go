// Package stats turns variant counters into rates, device segments and
// significance estimates.
package stats

import (
	"context"
	"sort"
	"time"

	"github.com/gkobilansky/variant-goat/internal/store"
)

// ConfidenceLevel is the level used for intervals and the Confident flag.
const ConfidenceLevel = 0.95

type VariantMetrics struct {
	VariantKey     string  `json:"variantKey"`
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Conversions    int64   `json:"conversions"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversionRate"`
	CILower        float64 `json:"ciLower"`
	CIUpper        float64 `json:"ciUpper"`
}

type Totals struct {
	Impressions    int64   `json:"impressions"`
	Clicks         int64   `json:"clicks"`
	Conversions    int64   `json:"conversions"`
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversionRate"`
}

type Segment struct {
	DeviceType string           `json:"deviceType"`
	PerVariant []VariantMetrics `json:"perVariant"`
	Totals     Totals           `json:"totals"`
}

// Report is the metrics(experimentId) result. Its JSON uses the camelCase
// field names of that contract, unlike the snake_case admin payloads.
type Report struct {
	ExperimentID  int64            `json:"experimentId"`
	Name          string           `json:"name"`
	Status        store.Status     `json:"status"`
	WinnerVariant string           `json:"winnerVariant,omitempty"`
	PerVariant    []VariantMetrics `json:"perVariant"`
	Totals        Totals           `json:"totals"`
	Segments      []Segment        `json:"segments"`
	Leader        string           `json:"leader,omitempty"`
	Confidence    float64          `json:"confidence"`
	Confident     bool             `json:"confident"`
}

// Ratio is n/d, or 0 when d is 0.
func Ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// ForVariant computes rates and the conversion-rate interval for one set of
// counters.
func ForVariant(key string, impressions, clicks, conversions int64) VariantMetrics {
	lo, hi := WilsonInterval(conversions, impressions, ConfidenceLevel)
	return VariantMetrics{
		VariantKey:     key,
		Impressions:    impressions,
		Clicks:         clicks,
		Conversions:    conversions,
		CTR:            Ratio(clicks, impressions),
		ConversionRate: Ratio(conversions, impressions),
		CILower:        lo,
		CIUpper:        hi,
	}
}

func totalsOf(vs []VariantMetrics) Totals {
	var t Totals
	for _, v := range vs {
		t.Impressions += v.Impressions
		t.Clicks += v.Clicks
		t.Conversions += v.Conversions
	}
	t.CTR = Ratio(t.Clicks, t.Impressions)
	t.ConversionRate = Ratio(t.Conversions, t.Impressions)
	return t
}

// Better reports whether a outranks b: higher conversion rate, then more
// impressions, then the lexically smaller key.
func Better(a, b VariantMetrics) bool {
	if a.ConversionRate != b.ConversionRate {
		return a.ConversionRate > b.ConversionRate
	}
	if a.Impressions != b.Impressions {
		return a.Impressions > b.Impressions
	}
	return a.VariantKey < b.VariantKey
}

// Leader returns the best variant by Better. ok is false for an empty list.
func Leader(vs []VariantMetrics) (best VariantMetrics, ok bool) {
	for i, v := range vs {
		if i == 0 || Better(v, best) {
			best = v
		}
	}
	return best, len(vs) > 0
}

// Compute builds a report from the experiment's variant counters and the
// per-device event tallies. It does no I/O.
func Compute(exp *store.Experiment, segments []store.SegmentCount) *Report {
	r := &Report{
		ExperimentID:  exp.ID,
		Name:          exp.Name,
		Status:        exp.Status,
		WinnerVariant: exp.WinnerVariant,
		PerVariant:    make([]VariantMetrics, 0, len(exp.Variants)),
		Segments:      []Segment{},
		Confidence:    0.5,
	}

	for _, v := range exp.Variants {
		r.PerVariant = append(r.PerVariant, ForVariant(v.Key, v.Impressions, v.Clicks, v.Conversions))
	}
	r.Totals = totalsOf(r.PerVariant)

	if leader, ok := Leader(r.PerVariant); ok {
		r.Leader = leader.VariantKey
		// Compare the leader against the strongest other variant.
		var rival *VariantMetrics
		for i := range r.PerVariant {
			v := &r.PerVariant[i]
			if v.VariantKey == leader.VariantKey {
				continue
			}
			if rival == nil || Better(*v, *rival) {
				rival = v
			}
		}
		if rival != nil {
			r.Confidence = SignificanceTest(leader.Conversions, leader.Impressions, rival.Conversions, rival.Impressions)
		}
	}
	r.Confident = r.Confidence >= ConfidenceLevel

	byDevice := map[string][]VariantMetrics{}
	for _, c := range segments {
		byDevice[c.DeviceType] = append(byDevice[c.DeviceType], ForVariant(c.VariantKey, c.Impressions, c.Clicks, c.Conversions))
	}
	devices := make([]string, 0, len(byDevice))
	for d := range byDevice {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	for _, d := range devices {
		vs := byDevice[d]
		sort.Slice(vs, func(i, j int) bool { return vs[i].VariantKey < vs[j].VariantKey })
		r.Segments = append(r.Segments, Segment{DeviceType: d, PerVariant: vs, Totals: totalsOf(vs)})
	}

	return r
}

// Aggregator reads counters from the store and computes reports.
type Aggregator struct {
	store   store.Store
	timeout time.Duration
}

func NewAggregator(s store.Store, timeout time.Duration) *Aggregator {
	return &Aggregator{store: s, timeout: timeout}
}

// Metrics returns the report for one experiment. A missing experiment is a
// NotFound error.
func (a *Aggregator) Metrics(ctx context.Context, experimentID int64) (*Report, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	exp, err := a.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	segments, err := a.store.SegmentCounts(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return Compute(exp, segments), nil
}
