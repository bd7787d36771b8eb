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

func TestScheduler_Sweep(t *testing.T) {
	s := testutil.SetupTestStore(t)
	ctx := context.Background()
	c := NewController(s)
	sched := NewScheduler(c, s, time.Hour)

	broken := testutil.NewExperiment("broken", 50)
	broken.Variants = broken.Variants[:1]
	broken = testutil.CreateExperiment(t, s, broken)
	require.NoError(t, s.TransitionStatus(ctx, broken.ID, store.StatusDraft, store.StatusRunning, "", time.Now()))

	ready := autoWinnerExperiment(t, s, 1, 0)
	testutil.Record(t, s, ready.ID, "A", store.EventClick, 1)

	idle := testutil.CreateRunning(t, s, "idle", 50)

	sweep, err := sched.sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sweep.Checked)
	assert.Equal(t, []int64{broken.ID}, sweep.Paused)
	assert.Equal(t, []int64{ready.ID}, sweep.Completed)

	assert.Equal(t, store.StatusPaused, testutil.Reload(t, s, broken.ID).Status)
	assert.Equal(t, store.StatusCompleted, testutil.Reload(t, s, ready.ID).Status)
	assert.Equal(t, store.StatusRunning, testutil.Reload(t, s, idle.ID).Status)
}

func TestScheduler_ServeStopsOnCancel(t *testing.T) {
	s := testutil.SetupTestStore(t)
	sched := NewScheduler(NewController(s), s, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sched.Serve(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "lifecycle-scheduler", sched.String())
}
