// Package events records exposures and interactions against variants.
package events

import (
	"context"
	"time"

	"github.com/gkobilansky/variant-goat/internal/fingerprint"
	"github.com/gkobilansky/variant-goat/internal/metrics"
	"github.com/gkobilansky/variant-goat/internal/store"
)

// Recorder appends events and bumps the matching counter in one storage
// call. Counting is best effort: a NotFound means the experiment or variant
// went away and the caller should drop the event.
type Recorder struct {
	store   store.Store
	timeout time.Duration
	now     func() time.Time
}

func NewRecorder(s store.Store, timeout time.Duration) *Recorder {
	return &Recorder{store: s, timeout: timeout, now: time.Now}
}

// RecordView logs one impression. Repeated views from the same visitor are
// all counted.
func (r *Recorder) RecordView(ctx context.Context, experimentID int64, variantKey string, visitor fingerprint.VisitorKey, device fingerprint.DeviceClass) error {
	return r.record(ctx, store.EventView, experimentID, variantKey, visitor, device)
}

// RecordClick logs a click for the server-assigned variant.
func (r *Recorder) RecordClick(ctx context.Context, experimentID int64, variantKey string, visitor fingerprint.VisitorKey, device fingerprint.DeviceClass) error {
	return r.record(ctx, store.EventClick, experimentID, variantKey, visitor, device)
}

// RecordConversion logs a conversion for the server-assigned variant.
func (r *Recorder) RecordConversion(ctx context.Context, experimentID int64, variantKey string, visitor fingerprint.VisitorKey, device fingerprint.DeviceClass) error {
	return r.record(ctx, store.EventConversion, experimentID, variantKey, visitor, device)
}

// Record dispatches on the event type.
func (r *Recorder) Record(ctx context.Context, typ store.EventType, experimentID int64, variantKey string, visitor fingerprint.VisitorKey, device fingerprint.DeviceClass) error {
	if !typ.Valid() {
		return store.ConfigurationError("record event", "unknown event type %q", typ)
	}
	return r.record(ctx, typ, experimentID, variantKey, visitor, device)
}

func (r *Recorder) record(ctx context.Context, typ store.EventType, experimentID int64, variantKey string, visitor fingerprint.VisitorKey, device fingerprint.DeviceClass) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if device == "" {
		device = fingerprint.Desktop
	}

	err := r.store.RecordEvent(ctx, store.Event{
		ExperimentID: experimentID,
		VariantKey:   variantKey,
		Type:         typ,
		VisitorHash:  string(visitor),
		DeviceType:   string(device),
		CreatedAt:    r.now(),
	})
	if err != nil {
		metrics.EventsDropped.WithLabelValues(string(typ), store.KindOf(err).String()).Inc()
		return err
	}
	metrics.EventsRecorded.WithLabelValues(string(typ)).Inc()
	return nil
}
