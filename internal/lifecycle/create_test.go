package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/variant-goat/internal/store"
	"github.com/gkobilansky/variant-goat/internal/testutil"
)

func twoVariants() []store.Variant {
	return []store.Variant{{Title: "Ship faster"}, {Title: "Build better"}}
}

func TestCreate_InheritsGlobalDefaults(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	_, err := s.UpdateConfig(ctx, store.GlobalConfig{
		Active:              true,
		DefaultSplit:        70,
		AutoWinnerEnabled:   true,
		AutoWinnerThreshold: 250,
		AutoWinnerDays:      3,
	})
	require.NoError(t, err)

	exp, err := NewController(s).Create(ctx, Draft{Name: " hero ", Variants: twoVariants()})
	require.NoError(t, err)

	assert.Equal(t, "hero", exp.Name)
	assert.Equal(t, store.StatusDraft, exp.Status)
	assert.Equal(t, 70, exp.SplitA)
	assert.True(t, exp.AutoWinnerEnabled)
	assert.Equal(t, 250, exp.AutoWinnerThreshold)
	assert.Equal(t, 3, exp.AutoWinnerDays)
	require.Len(t, exp.Variants, 2)
	assert.Equal(t, "A", exp.Variants[0].Key)
	assert.Equal(t, "Ship faster", exp.Variants[0].Title)
	assert.Equal(t, "B", exp.Variants[1].Key)
}

func TestCreate_ExplicitSettingsWin(t *testing.T) {
	s := testutil.SetupTestStore(t)
	split, enabled, days := 20, false, 0

	exp, err := NewController(s).Create(context.Background(), Draft{
		Name:              "hero",
		SplitA:            &split,
		AutoWinnerEnabled: &enabled,
		AutoWinnerDays:    &days,
		Variants:          twoVariants(),
	})
	require.NoError(t, err)

	assert.Equal(t, 20, exp.SplitA)
	assert.False(t, exp.AutoWinnerEnabled)
	assert.Equal(t, 0, exp.AutoWinnerDays)
}

func TestCreate_RejectsBadDrafts(t *testing.T) {
	s := testutil.SetupTestStore(t)
	c := NewController(s)
	badSplit := 101
	start := time.Now()
	end := start.Add(-time.Hour)

	tests := []struct {
		name  string
		draft Draft
	}{
		{"no name", Draft{Variants: twoVariants()}},
		{"one variant", Draft{Name: "x", Variants: twoVariants()[:1]}},
		{"three variants", Draft{Name: "x", Variants: append(twoVariants(), store.Variant{Title: "C"})}},
		{"split above 100", Draft{Name: "x", SplitA: &badSplit, Variants: twoVariants()}},
		{"end before start", Draft{Name: "x", StartDate: &start, EndDate: &end, Variants: twoVariants()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Create(context.Background(), tt.draft)
			assert.True(t, store.IsConfiguration(err), "got %v", err)
		})
	}

	list, err := s.ListExperiments(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
