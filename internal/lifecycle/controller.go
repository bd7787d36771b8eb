// Package lifecycle owns the experiment state machine:
//
//	draft --start--> running --stop(paused)--> paused --start--> running
//	running --stop(completed) or auto-winner--> completed (terminal)
//
// Every transition is a compare-and-swap on the stored status, so concurrent
// callers cannot both commit.
package lifecycle

import (
	"context"
	"time"

	"github.com/gkobilansky/variant-goat/internal/bucketing"
	"github.com/gkobilansky/variant-goat/internal/logging"
	"github.com/gkobilansky/variant-goat/internal/metrics"
	"github.com/gkobilansky/variant-goat/internal/publisher"
	"github.com/gkobilansky/variant-goat/internal/stats"
	"github.com/gkobilansky/variant-goat/internal/store"
)

// allowed lists the legal transitions.
var allowed = map[store.Status][]store.Status{
	store.StatusDraft:   {store.StatusRunning},
	store.StatusRunning: {store.StatusPaused, store.StatusCompleted},
	store.StatusPaused:  {store.StatusRunning},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to store.Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// defaultPublishTimeout bounds lifecycle notifications independently of the
// storage timeout.
const defaultPublishTimeout = 2 * time.Second

type Controller struct {
	store          store.Store
	publisher      publisher.Publisher
	timeout        time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

type Option func(*Controller)

func WithPublisher(p publisher.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithTimeout bounds each storage call made by the controller.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithPublishTimeout bounds each lifecycle notification.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Controller) { c.publishTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(s store.Store, opts ...Option) *Controller {
	c := &Controller{
		store:          s,
		publisher:      publisher.Nop{},
		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Start moves a draft or paused experiment to running. The experiment must
// have exactly two variants and a valid split. Starting does not pause any
// other running experiment.
func (c *Controller) Start(ctx context.Context, id int64) (*store.Experiment, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(exp.Status, store.StatusRunning) {
		return nil, store.StateError("start", "experiment %d is %s", id, exp.Status)
	}
	if len(exp.Variants) != 2 {
		return nil, store.ConfigurationError("start", "experiment %d has %d variants, need exactly 2", id, len(exp.Variants))
	}
	if err := bucketing.ValidateSplit(exp.SplitA); err != nil {
		return nil, err
	}

	return c.transition(ctx, exp, store.StatusRunning, "", "start")
}

// Stop moves a running experiment to paused or completed.
func (c *Controller) Stop(ctx context.Context, id int64, target store.Status) (*store.Experiment, error) {
	return c.stop(ctx, id, target, "", "stop")
}

// Complete closes a running experiment with an explicitly chosen winner.
// An empty winner completes without one.
func (c *Controller) Complete(ctx context.Context, id int64, winner string) (*store.Experiment, error) {
	return c.stop(ctx, id, store.StatusCompleted, winner, "manual winner")
}

// Pause is the automatic safety stop.
func (c *Controller) Pause(ctx context.Context, id int64, reason string) (*store.Experiment, error) {
	return c.stop(ctx, id, store.StatusPaused, "", reason)
}

func (c *Controller) stop(ctx context.Context, id int64, target store.Status, winner, reason string) (*store.Experiment, error) {
	if target != store.StatusPaused && target != store.StatusCompleted {
		return nil, store.StateError("stop", "cannot stop into %q", target)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(exp.Status, target) {
		return nil, store.StateError("stop", "experiment %d is %s", id, exp.Status)
	}
	if winner != "" && !hasVariant(exp, winner) {
		return nil, store.ConfigurationError("stop", "experiment %d has no variant %q", id, winner)
	}

	return c.transition(ctx, exp, target, winner, reason)
}

func hasVariant(exp *store.Experiment, key string) bool {
	for _, v := range exp.Variants {
		if v.Key == key {
			return true
		}
	}
	return false
}

// transition commits exp.Status -> to and publishes the change. exp is
// updated in place and returned.
func (c *Controller) transition(ctx context.Context, exp *store.Experiment, to store.Status, winner, reason string) (*store.Experiment, error) {
	from := exp.Status
	at := c.now()

	if err := c.store.TransitionStatus(ctx, exp.ID, from, to, winner, at); err != nil {
		return nil, err
	}
	metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()

	exp.Status = to
	exp.UpdatedAt = at
	switch to {
	case store.StatusRunning:
		if exp.StartDate == nil {
			start := time.Unix(at.Unix(), 0)
			exp.StartDate = &start
		}
	case store.StatusCompleted:
		end := time.Unix(at.Unix(), 0)
		exp.EndDate = &end
		exp.WinnerVariant = winner
	}

	logging.Ctx(ctx).Info().
		Int64("experiment_id", exp.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("winner", winner).
		Str("reason", reason).
		Msg("experiment transitioned")

	event := publisher.LifecycleEvent{
		ExperimentID: exp.ID,
		Name:         exp.Name,
		From:         string(from),
		To:           string(to),
		Winner:       winner,
		Reason:       reason,
		At:           at,
	}
	if err := c.publish(ctx, event); err != nil {
		// The transition is committed; a lost notification is not fatal.
		logging.Ctx(ctx).Warn().Err(err).Int64("experiment_id", exp.ID).Msg("failed to publish lifecycle event")
	}
	return exp, nil
}

// publish runs detached from the caller's storage deadline so a slow broker
// cannot hold an admin request for the whole storage timeout.
func (c *Controller) publish(ctx context.Context, event publisher.LifecycleEvent) error {
	pubCtx := context.WithoutCancel(ctx)
	if c.publishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(pubCtx, c.publishTimeout)
		defer cancel()
	}
	return c.publisher.Publish(pubCtx, event)
}

// Verdict is the outcome of an auto-winner evaluation.
type Verdict struct {
	ExperimentID int64  `json:"experiment_id"`
	Reason       string `json:"reason"`
	Completed    bool   `json:"completed"`
	Winner       string `json:"winner,omitempty"`
	TotalClicks  int64  `json:"total_clicks"`
	DaysRunning  int    `json:"days_running"`
}

const (
	ReasonDisabled  = "disabled"
	ReasonPending   = "pending"
	ReasonThreshold = "threshold"
	ReasonDays      = "days"
)

// EvaluateAutoWinner completes a running experiment once auto-winner is
// enabled and either total clicks reach the threshold or enough days have
// passed since start. A criterion set to zero or less never fires. The
// winner has the higher conversion rate, then more impressions, then the
// lexically smaller key. If another caller completes or stops the
// experiment first, this call fails with a StateError.
func (c *Controller) EvaluateAutoWinner(ctx context.Context, id int64) (*Verdict, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	exp, err := c.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusRunning {
		return nil, store.StateError("evaluate", "experiment %d is %s", id, exp.Status)
	}

	v := &Verdict{ExperimentID: id, TotalClicks: exp.TotalClicks()}
	if exp.StartDate != nil {
		v.DaysRunning = int(c.now().Sub(*exp.StartDate) / (24 * time.Hour))
	}

	switch {
	case !exp.AutoWinnerEnabled:
		v.Reason = ReasonDisabled
	case exp.AutoWinnerThreshold > 0 && v.TotalClicks >= int64(exp.AutoWinnerThreshold):
		v.Reason = ReasonThreshold
	case exp.AutoWinnerDays > 0 && exp.StartDate != nil && v.DaysRunning >= exp.AutoWinnerDays:
		v.Reason = ReasonDays
	default:
		v.Reason = ReasonPending
	}
	if v.Reason == ReasonDisabled || v.Reason == ReasonPending {
		metrics.AutoWinnerEvaluations.WithLabelValues(v.Reason).Inc()
		return v, nil
	}

	if len(exp.Variants) != 2 {
		return nil, store.ConfigurationError("evaluate", "experiment %d has %d variants, need exactly 2", id, len(exp.Variants))
	}
	candidates := make([]stats.VariantMetrics, 0, len(exp.Variants))
	for _, variant := range exp.Variants {
		candidates = append(candidates, stats.ForVariant(variant.Key, variant.Impressions, variant.Clicks, variant.Conversions))
	}
	best, _ := stats.Leader(candidates)

	if _, err := c.transition(ctx, exp, store.StatusCompleted, best.VariantKey, "auto-winner: "+v.Reason); err != nil {
		if store.IsState(err) {
			metrics.AutoWinnerEvaluations.WithLabelValues("lost_race").Inc()
		}
		return nil, err
	}

	metrics.AutoWinnerEvaluations.WithLabelValues("completed").Inc()
	v.Completed = true
	v.Winner = best.VariantKey
	return v, nil
}
