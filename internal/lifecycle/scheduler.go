package lifecycle

import (
	"context"
	"time"

	"github.com/gkobilansky/variant-goat/internal/bucketing"
	"github.com/gkobilansky/variant-goat/internal/logging"
	"github.com/gkobilansky/variant-goat/internal/store"
)

// Scheduler periodically sweeps running experiments. Misconfigured ones
// are paused; the rest get an auto-winner evaluation. It satisfies
// suture.Service.
type Scheduler struct {
	controller *Controller
	store      store.Store
	interval   time.Duration
}

func NewScheduler(c *Controller, s store.Store, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{controller: c, store: s, interval: interval}
}

func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				logging.Warn().Err(err).Msg("lifecycle sweep failed")
			}
		}
	}
}

func (s *Scheduler) String() string {
	return "lifecycle-scheduler"
}

// Sweep summarizes one RunOnce pass.
type Sweep struct {
	Checked   int
	Paused    []int64
	Completed []int64
}

// RunOnce performs a single sweep. Only a failure to list experiments is
// returned; per-experiment failures are logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	_, err := s.sweep(ctx)
	return err
}

func (s *Scheduler) sweep(ctx context.Context) (*Sweep, error) {
	listCtx, cancel := s.controller.withTimeout(ctx)
	running, err := s.store.ListExperiments(listCtx, store.StatusRunning)
	cancel()
	if err != nil {
		return nil, err
	}

	out := &Sweep{Checked: len(running)}
	for _, exp := range running {
		if ctx.Err() != nil {
			return out, nil
		}
		log := logging.With().Int64("experiment_id", exp.ID).Logger()

		if reason := misconfiguration(exp); reason != "" {
			if _, err := s.controller.Pause(ctx, exp.ID, reason); err != nil {
				log.Warn().Err(err).Msg("safety pause failed")
				continue
			}
			log.Warn().Str("reason", reason).Msg("paused misconfigured experiment")
			out.Paused = append(out.Paused, exp.ID)
			continue
		}

		if !exp.AutoWinnerEnabled {
			continue
		}
		v, err := s.controller.EvaluateAutoWinner(ctx, exp.ID)
		switch {
		case store.IsState(err):
			log.Debug().Err(err).Msg("experiment changed during evaluation")
		case err != nil:
			log.Warn().Err(err).Msg("auto-winner evaluation failed")
		case v.Completed:
			out.Completed = append(out.Completed, exp.ID)
		}
	}
	return out, nil
}

func misconfiguration(exp *store.Experiment) string {
	if len(exp.Variants) != 2 {
		return "variant count is not 2"
	}
	if bucketing.ValidateSplit(exp.SplitA) != nil {
		return "traffic split outside 0-100"
	}
	return ""
}
