package store

import (
	"context"
	"time"
)

// Store is the storage boundary. Every error it returns is an *Error.
type Store interface {
	// Experiments
	CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error)
	GetExperiment(ctx context.Context, id int64) (*Experiment, error)
	ListExperiments(ctx context.Context, status Status) ([]*Experiment, error)
	// CurrentExperiment returns the most recently created running
	// experiment whose start/end window covers now.
	CurrentExperiment(ctx context.Context, now time.Time) (*Experiment, error)
	DeleteExperiment(ctx context.Context, id int64) error
	// TransitionStatus moves id from one status to another only if it is
	// still in from. A lost race is a StateError.
	TransitionStatus(ctx context.Context, id int64, from, to Status, winner string, at time.Time) error

	// Events
	RecordEvent(ctx context.Context, e Event) error
	SegmentCounts(ctx context.Context, experimentID int64) ([]SegmentCount, error)
	ListEvents(ctx context.Context, experimentID int64) ([]*Event, error)
	RecountCounters(ctx context.Context, experimentID int64) error

	// Settings
	GetConfig(ctx context.Context) (*GlobalConfig, error)
	UpdateConfig(ctx context.Context, cfg GlobalConfig) (*GlobalConfig, error)

	Ping(ctx context.Context) error
	Close() error
}
