package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/gkobilansky/variant-goat/internal/bucketing"
	"github.com/gkobilansky/variant-goat/internal/logging"
	"github.com/gkobilansky/variant-goat/internal/store"
)

// VariantKeys are assigned to a draft's variants in order.
var VariantKeys = [2]string{"A", "B"}

// Draft describes a new experiment. Nil settings inherit the current
// global defaults.
type Draft struct {
	Name        string
	Description string
	Goal        string

	SplitA              *int
	AutoWinnerEnabled   *bool
	AutoWinnerThreshold *int
	AutoWinnerDays      *int

	StartDate *time.Time
	EndDate   *time.Time

	// Variants must hold exactly two entries; keys are overwritten.
	Variants []store.Variant
}

// Create stores d as a draft experiment.
func (c *Controller) Create(ctx context.Context, d Draft) (*store.Experiment, error) {
	const op = "create experiment"

	if strings.TrimSpace(d.Name) == "" {
		return nil, store.ConfigurationError(op, "name is required")
	}
	if len(d.Variants) != len(VariantKeys) {
		return nil, store.ConfigurationError(op, "got %d variants, need exactly %d", len(d.Variants), len(VariantKeys))
	}
	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		return nil, store.ConfigurationError(op, "end date is before start date")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	defaults, err := c.store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}

	exp := &store.Experiment{
		Name:                strings.TrimSpace(d.Name),
		Description:         d.Description,
		Goal:                d.Goal,
		SplitA:              pick(d.SplitA, defaults.DefaultSplit),
		AutoWinnerEnabled:   pick(d.AutoWinnerEnabled, defaults.AutoWinnerEnabled),
		AutoWinnerThreshold: pick(d.AutoWinnerThreshold, defaults.AutoWinnerThreshold),
		AutoWinnerDays:      pick(d.AutoWinnerDays, defaults.AutoWinnerDays),
		StartDate:           d.StartDate,
		EndDate:             d.EndDate,
		Variants:            make([]store.Variant, len(d.Variants)),
	}
	if err := bucketing.ValidateSplit(exp.SplitA); err != nil {
		return nil, err
	}
	for i, v := range d.Variants {
		v.Key = VariantKeys[i]
		exp.Variants[i] = v
	}

	created, err := c.store.CreateExperiment(ctx, exp)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().
		Int64("experiment_id", created.ID).
		Str("name", created.Name).
		Int("split_a", created.SplitA).
		Msg("experiment created")
	return created, nil
}

func pick[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}
