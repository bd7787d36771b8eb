// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gkobilansky/variant-goat/internal/store"
)

// SetupTestStore opens a sqlite store under t.TempDir(), closed on cleanup.
func SetupTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewExperiment returns an unsaved two-variant experiment.
func NewExperiment(name string, splitA int) *store.Experiment {
	return &store.Experiment{
		Name:                name,
		Goal:                "signup",
		SplitA:              splitA,
		AutoWinnerThreshold: 1000,
		AutoWinnerDays:      7,
		Variants: []store.Variant{
			{Key: "A", Title: "Ship faster", ButtonText: "Start", ButtonLink: "/signup"},
			{Key: "B", Title: "Build better", ButtonText: "Try it", ButtonLink: "/signup"},
		},
	}
}

// CreateExperiment saves exp and fails the test on error.
func CreateExperiment(t *testing.T, s store.Store, exp *store.Experiment) *store.Experiment {
	t.Helper()

	created, err := s.CreateExperiment(context.Background(), exp)
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	return created
}

// CreateRunning saves a two-variant experiment and moves it to running.
func CreateRunning(t *testing.T, s store.Store, name string, splitA int) *store.Experiment {
	t.Helper()

	exp := CreateExperiment(t, s, NewExperiment(name, splitA))
	if err := s.TransitionStatus(context.Background(), exp.ID, store.StatusDraft, store.StatusRunning, "", time.Now()); err != nil {
		t.Fatalf("failed to start experiment: %v", err)
	}
	return Reload(t, s, exp.ID)
}

// Reload fetches the experiment with id.
func Reload(t *testing.T, s store.Store, id int64) *store.Experiment {
	t.Helper()

	exp, err := s.GetExperiment(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to get experiment: %v", err)
	}
	return exp
}

// Record appends n events of the given type and fails the test on error.
func Record(t *testing.T, s store.Store, id int64, key string, typ store.EventType, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		err := s.RecordEvent(context.Background(), store.Event{
			ExperimentID: id,
			VariantKey:   key,
			Type:         typ,
			DeviceType:   "desktop",
		})
		if err != nil {
			t.Fatalf("failed to record %s: %v", typ, err)
		}
	}
}
