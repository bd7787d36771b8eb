package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gkobilansky/variant-goat/internal/store"
	"github.com/gkobilansky/variant-goat/internal/testutil"
)

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := t.TempDir() + "/test.db"

	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	testutil.CreateExperiment(t, s, testutil.NewExperiment("hero", 50))
	s.Close()

	s, err = store.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	exps, err := s.ListExperiments(context.Background(), "")
	if err != nil {
		t.Fatalf("failed to list experiments: %v", err)
	}
	if len(exps) != 1 {
		t.Errorf("got %d experiments, want 1", len(exps))
	}
}

func TestCreateExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)

	exp := testutil.CreateExperiment(t, s, testutil.NewExperiment("hero", 70))

	if exp.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if exp.Status != store.StatusDraft {
		t.Errorf("got status %s, want draft", exp.Status)
	}
	if len(exp.Variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(exp.Variants))
	}

	got := testutil.Reload(t, s, exp.ID)
	if got.SplitA != 70 {
		t.Errorf("got split %d, want 70", got.SplitA)
	}
	if got.Variants[0].Key != "A" || got.Variants[1].Key != "B" {
		t.Errorf("got variant keys %s,%s, want A,B", got.Variants[0].Key, got.Variants[1].Key)
	}
	if got.Variants[0].Title != "Ship faster" {
		t.Errorf("got title %q, want %q", got.Variants[0].Title, "Ship faster")
	}
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := s.GetExperiment(context.Background(), 999)
	if !store.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestListExperiments_FilterAndOrder(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	first := testutil.CreateExperiment(t, s, testutil.NewExperiment("first", 50))
	second := testutil.CreateRunning(t, s, "second", 50)

	all, err := s.ListExperiments(ctx, "")
	if err != nil {
		t.Fatalf("failed to list experiments: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d experiments, want 2", len(all))
	}
	if all[0].ID != second.ID || all[1].ID != first.ID {
		t.Errorf("got order %d,%d, want newest first", all[0].ID, all[1].ID)
	}
	for _, e := range all {
		if len(e.Variants) != 2 {
			t.Errorf("experiment %d: got %d variants, want 2", e.ID, len(e.Variants))
		}
	}

	running, err := s.ListExperiments(ctx, store.StatusRunning)
	if err != nil {
		t.Fatalf("failed to list experiments: %v", err)
	}
	if len(running) != 1 || running[0].ID != second.ID {
		t.Errorf("got %d running experiments, want only %d", len(running), second.ID)
	}
}

func TestCurrentExperiment_RespectsWindow(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := s.CurrentExperiment(ctx, now); !store.IsNotFound(err) {
		t.Fatalf("got %v, want not found with no experiments", err)
	}

	running := testutil.CreateRunning(t, s, "open", 50)

	future := now.Add(48 * time.Hour)
	later := testutil.NewExperiment("later", 50)
	later.StartDate = &future
	later = testutil.CreateExperiment(t, s, later)
	if err := s.TransitionStatus(ctx, later.ID, store.StatusDraft, store.StatusRunning, "", now); err != nil {
		t.Fatalf("failed to start experiment: %v", err)
	}

	got, err := s.CurrentExperiment(ctx, now)
	if err != nil {
		t.Fatalf("failed to get current experiment: %v", err)
	}
	if got.ID != running.ID {
		t.Errorf("got experiment %d, want %d (later one has not started)", got.ID, running.ID)
	}

	got, err = s.CurrentExperiment(ctx, future.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to get current experiment: %v", err)
	}
	if got.ID != later.ID {
		t.Errorf("got experiment %d, want most recent %d", got.ID, later.ID)
	}
}

func TestTransitionStatus_CompareAndSwap(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	exp := testutil.CreateRunning(t, s, "hero", 50)
	if exp.StartDate == nil {
		t.Fatal("expected start date after start")
	}

	err := s.TransitionStatus(ctx, exp.ID, store.StatusRunning, store.StatusCompleted, "B", time.Now())
	if err != nil {
		t.Fatalf("failed to complete: %v", err)
	}

	err = s.TransitionStatus(ctx, exp.ID, store.StatusRunning, store.StatusCompleted, "A", time.Now())
	if !store.IsState(err) {
		t.Errorf("got %v, want state error for stale status", err)
	}

	got := testutil.Reload(t, s, exp.ID)
	if got.WinnerVariant != "B" {
		t.Errorf("got winner %q, want B", got.WinnerVariant)
	}
	if got.EndDate == nil {
		t.Error("expected end date on completion")
	}

	err = s.TransitionStatus(ctx, 999, store.StatusDraft, store.StatusRunning, "", time.Now())
	if !store.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestTransitionStatus_ConcurrentSingleWinner(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.CreateRunning(t, s, "hero", 50)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		commits int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			winner := "A"
			if i%2 == 1 {
				winner = "B"
			}
			err := s.TransitionStatus(context.Background(), exp.ID, store.StatusRunning, store.StatusCompleted, winner, time.Now())
			if err == nil {
				mu.Lock()
				commits++
				mu.Unlock()
			} else if !store.IsState(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if commits != 1 {
		t.Errorf("got %d commits, want exactly 1", commits)
	}
}

func TestRecordEvent_IncrementsCounters(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.CreateRunning(t, s, "hero", 50)

	testutil.Record(t, s, exp.ID, "A", store.EventView, 3)
	testutil.Record(t, s, exp.ID, "A", store.EventClick, 2)
	testutil.Record(t, s, exp.ID, "B", store.EventConversion, 1)

	got := testutil.Reload(t, s, exp.ID)
	a, b := got.Variants[0], got.Variants[1]
	if a.Impressions != 3 || a.Clicks != 2 || a.Conversions != 0 {
		t.Errorf("got A counters %d/%d/%d, want 3/2/0", a.Impressions, a.Clicks, a.Conversions)
	}
	if b.Conversions != 1 {
		t.Errorf("got B conversions %d, want 1", b.Conversions)
	}

	events, err := s.ListEvents(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 6 {
		t.Errorf("got %d events, want 6", len(events))
	}
}

func TestRecordEvent_DoesNotDeduplicateViews(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.CreateRunning(t, s, "hero", 50)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := s.RecordEvent(ctx, store.Event{ExperimentID: exp.ID, VariantKey: "A", Type: store.EventView, VisitorHash: "same"})
		if err != nil {
			t.Fatalf("failed to record view: %v", err)
		}
	}

	if got := testutil.Reload(t, s, exp.ID).Variants[0].Impressions; got != 2 {
		t.Errorf("got %d impressions, want 2", got)
	}
}

func TestRecordEvent_ConcurrentNoLostUpdates(t *testing.T) {
	s := testutil.SetupTestStore(t)
	exp := testutil.CreateRunning(t, s, "hero", 50)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RecordEvent(context.Background(), store.Event{ExperimentID: exp.ID, VariantKey: "B", Type: store.EventView})
			if err != nil {
				t.Errorf("failed to record view: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := testutil.Reload(t, s, exp.ID).Variants[1].Impressions; got != n {
		t.Errorf("got %d impressions, want %d", got, n)
	}
}

func TestRecordEvent_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.CreateRunning(t, s, "hero", 50)

	tests := []struct {
		name  string
		event store.Event
	}{
		{"unknown experiment", store.Event{ExperimentID: 999, VariantKey: "A", Type: store.EventView}},
		{"unknown variant", store.Event{ExperimentID: exp.ID, VariantKey: "C", Type: store.EventClick}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.RecordEvent(ctx, tt.event); !store.IsNotFound(err) {
				t.Errorf("got %v, want not found", err)
			}
		})
	}

	if err := s.TransitionStatus(ctx, exp.ID, store.StatusRunning, store.StatusCompleted, "A", time.Now()); err != nil {
		t.Fatalf("failed to complete: %v", err)
	}
	err := s.RecordEvent(ctx, store.Event{ExperimentID: exp.ID, VariantKey: "A", Type: store.EventConversion})
	if !store.IsNotFound(err) {
		t.Errorf("got %v, want not found after completion", err)
	}

	events, err := s.ListEvents(ctx, exp.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want none written", len(events))
	}
}

func TestSegmentCounts(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.CreateRunning(t, s, "hero", 50)

	for _, e := range []store.Event{
		{ExperimentID: exp.ID, VariantKey: "A", Type: store.EventView, DeviceType: "mobile"},
		{ExperimentID: exp.ID, VariantKey: "A", Type: store.EventView, DeviceType: "mobile"},
		{ExperimentID: exp.ID, VariantKey: "A", Type: store.EventClick, DeviceType: "mobile"},
		{ExperimentID: exp.ID, VariantKey: "A", Type: store.EventView, DeviceType: "desktop"},
	} {
		if err := s.RecordEvent(ctx, e); err != nil {
			t.Fatalf("failed to record event: %v", err)
		}
	}

	counts, err := s.SegmentCounts(ctx, exp.ID)
	if err != nil {
		t.Fatalf("failed to get segment counts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("got %d segments, want 2", len(counts))
	}
	desktop, mobile := counts[0], counts[1]
	if desktop.DeviceType != "desktop" || desktop.Impressions != 1 {
		t.Errorf("got desktop %+v, want 1 impression", desktop)
	}
	if mobile.Impressions != 2 || mobile.Clicks != 1 {
		t.Errorf("got mobile %+v, want 2 impressions 1 click", mobile)
	}
}

func TestRecountCounters(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	exp := testutil.CreateRunning(t, s, "hero", 50)

	testutil.Record(t, s, exp.ID, "A", store.EventView, 4)
	testutil.Record(t, s, exp.ID, "B", store.EventClick, 2)

	if err := s.RecountCounters(ctx, exp.ID); err != nil {
		t.Fatalf("failed to recount: %v", err)
	}
	got := testutil.Reload(t, s, exp.ID)
	if got.Variants[0].Impressions != 4 || got.Variants[1].Clicks != 2 {
		t.Errorf("got %d impressions / %d clicks, want 4 / 2", got.Variants[0].Impressions, got.Variants[1].Clicks)
	}

	if err := s.RecountCounters(ctx, 999); !store.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestDeleteExperiment(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	running := testutil.CreateRunning(t, s, "live", 50)
	if err := s.DeleteExperiment(ctx, running.ID); !store.IsState(err) {
		t.Errorf("got %v, want state error deleting running experiment", err)
	}

	if err := s.TransitionStatus(ctx, running.ID, store.StatusRunning, store.StatusPaused, "", time.Now()); err != nil {
		t.Fatalf("failed to pause: %v", err)
	}
	testutil.Record(t, s, running.ID, "A", store.EventView, 1)

	if err := s.DeleteExperiment(ctx, running.ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := s.GetExperiment(ctx, running.ID); !store.IsNotFound(err) {
		t.Errorf("got %v, want not found after delete", err)
	}
	events, err := s.ListEvents(ctx, running.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want cascade delete", len(events))
	}

	if err := s.DeleteExperiment(ctx, 999); !store.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestConfig_DefaultsAndUpdate(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()

	cfg, err := s.GetConfig(ctx)
	if err != nil {
		t.Fatalf("failed to get config: %v", err)
	}
	if cfg.Active || cfg.DefaultSplit != 50 || cfg.AutoWinnerThreshold != 1000 || cfg.AutoWinnerDays != 7 {
		t.Errorf("got %+v, want seeded defaults", cfg)
	}

	cfg.Active = true
	cfg.DefaultSplit = 60
	if _, err := s.UpdateConfig(ctx, *cfg); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
	got, err := s.GetConfig(ctx)
	if err != nil {
		t.Fatalf("failed to get config: %v", err)
	}
	if !got.Active || got.DefaultSplit != 60 {
		t.Errorf("got %+v, want active with split 60", got)
	}

	cfg.DefaultSplit = 150
	if _, err := s.UpdateConfig(ctx, *cfg); !store.IsConfiguration(err) {
		t.Errorf("got %v, want configuration error", err)
	}
}

func TestCanceledContext_IsStorageError(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListExperiments(ctx, "")
	if !store.IsStorage(err) {
		t.Errorf("got %v, want storage error", err)
	}
}
