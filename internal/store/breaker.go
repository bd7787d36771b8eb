package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/gkobilansky/variant-goat/internal/logging"
	"github.com/gkobilansky/variant-goat/internal/metrics"
)

// BreakerSettings configures the circuit breaker around a Store.
type BreakerSettings struct {
	Name         string
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// BreakerStore trips after repeated storage failures and then rejects calls
// with a StorageError until the open timeout elapses. Domain errors
// (NotFound, State, Configuration) never count as failures.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
}

var _ Store = (*BreakerStore)(nil)

func NewBreakerStore(next Store, s BreakerSettings) *BreakerStore {
	if s.Name == "" {
		s.Name = "store"
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.6
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}

	metrics.BreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || KindOf(err) != KindStorage
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("storage circuit breaker changed state")
		},
	})

	return &BreakerStore{next: next, cb: cb}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State reports the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func guarded[T any](b *BreakerStore, op string, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = StorageError(op, err)
		}
		if IsStorage(err) {
			metrics.StorageErrors.WithLabelValues(op).Inc()
		}
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func guardedErr(b *BreakerStore, op string, fn func() error) error {
	_, err := guarded(b, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *BreakerStore) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	return guarded(b, "create experiment", func() (*Experiment, error) {
		return b.next.CreateExperiment(ctx, exp)
	})
}

func (b *BreakerStore) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	return guarded(b, "get experiment", func() (*Experiment, error) {
		return b.next.GetExperiment(ctx, id)
	})
}

func (b *BreakerStore) ListExperiments(ctx context.Context, status Status) ([]*Experiment, error) {
	return guarded(b, "list experiments", func() ([]*Experiment, error) {
		return b.next.ListExperiments(ctx, status)
	})
}

func (b *BreakerStore) CurrentExperiment(ctx context.Context, now time.Time) (*Experiment, error) {
	return guarded(b, "current experiment", func() (*Experiment, error) {
		return b.next.CurrentExperiment(ctx, now)
	})
}

func (b *BreakerStore) DeleteExperiment(ctx context.Context, id int64) error {
	return guardedErr(b, "delete experiment", func() error {
		return b.next.DeleteExperiment(ctx, id)
	})
}

func (b *BreakerStore) TransitionStatus(ctx context.Context, id int64, from, to Status, winner string, at time.Time) error {
	return guardedErr(b, "transition experiment", func() error {
		return b.next.TransitionStatus(ctx, id, from, to, winner, at)
	})
}

func (b *BreakerStore) RecordEvent(ctx context.Context, e Event) error {
	return guardedErr(b, "record event", func() error {
		return b.next.RecordEvent(ctx, e)
	})
}

func (b *BreakerStore) SegmentCounts(ctx context.Context, experimentID int64) ([]SegmentCount, error) {
	return guarded(b, "segment counts", func() ([]SegmentCount, error) {
		return b.next.SegmentCounts(ctx, experimentID)
	})
}

func (b *BreakerStore) ListEvents(ctx context.Context, experimentID int64) ([]*Event, error) {
	return guarded(b, "list events", func() ([]*Event, error) {
		return b.next.ListEvents(ctx, experimentID)
	})
}

func (b *BreakerStore) RecountCounters(ctx context.Context, experimentID int64) error {
	return guardedErr(b, "recount counters", func() error {
		return b.next.RecountCounters(ctx, experimentID)
	})
}

func (b *BreakerStore) GetConfig(ctx context.Context) (*GlobalConfig, error) {
	return guarded(b, "get config", func() (*GlobalConfig, error) {
		return b.next.GetConfig(ctx)
	})
}

func (b *BreakerStore) UpdateConfig(ctx context.Context, cfg GlobalConfig) (*GlobalConfig, error) {
	return guarded(b, "update config", func() (*GlobalConfig, error) {
		return b.next.UpdateConfig(ctx, cfg)
	})
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	return guardedErr(b, "ping", func() error {
		return b.next.Ping(ctx)
	})
}

// Close bypasses the breaker.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}
