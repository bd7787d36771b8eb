package server

import (
	"net/http"
	"time"

	"github.com/gkobilansky/variant-goat/internal/bucketing"
	"github.com/gkobilansky/variant-goat/internal/fingerprint"
	"github.com/gkobilansky/variant-goat/internal/logging"
	"github.com/gkobilansky/variant-goat/internal/metrics"
	"github.com/gkobilansky/variant-goat/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeCtx(r)
	defer cancel()

	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(s.now().Sub(s.startTime).Seconds()),
	}

	exps, err := s.store.ListExperiments(ctx, "")
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("health check failed")
		resp.Status = "degraded"
		writeJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	resp.ExperimentsCount = len(exps)
	writeJSON(w, r, http.StatusOK, resp)
}

type VariantContent struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
	ButtonText  string `json:"button_text"`
	ButtonLink  string `json:"button_link"`
}

func contentOf(v store.Variant) VariantContent {
	return VariantContent{
		Key:         v.Key,
		Title:       v.Title,
		Subtitle:    v.Subtitle,
		Description: v.Description,
		ButtonText:  v.ButtonText,
		ButtonLink:  v.ButtonLink,
	}
}

// VariantResponse is what a visitor's page renders. Only Active is set
// when no experiment is being served.
type VariantResponse struct {
	Active         bool            `json:"active"`
	ExperimentID   int64           `json:"experiment_id,omitempty"`
	ExperimentName string          `json:"experiment_name,omitempty"`
	Variant        *VariantContent `json:"variant,omitempty"`
	SplitA         *int            `json:"split_a,omitempty"`
	DeviceType     string          `json:"device_type,omitempty"`
}

// handleVariant assigns the caller to a variant of the current experiment
// and logs a view. Storage trouble degrades to an inactive response.
func (s *Server) handleVariant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeCtx(r)
	defer cancel()
	log := logging.Ctx(ctx)

	inactive := func() { writeJSON(w, r, http.StatusOK, VariantResponse{Active: false}) }

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("config unavailable, serving inactive")
		inactive()
		return
	}
	if !cfg.Active {
		inactive()
		return
	}

	exp, err := s.store.CurrentExperiment(ctx, s.now())
	if err != nil {
		if !store.IsNotFound(err) {
			log.Warn().Err(err).Msg("current experiment unavailable, serving inactive")
		}
		inactive()
		return
	}

	ua := r.UserAgent()
	visitor := fingerprint.Hash(ua, fingerprint.ClientAddress(r))
	device := fingerprint.Device(ua)

	variant, err := bucketing.Assign(visitor, exp, exp.Variants)
	if err != nil {
		log.Error().Err(err).Int64("experiment_id", exp.ID).Msg("experiment cannot be bucketed")
		writeStoreError(w, r, err)
		return
	}
	metrics.Assignments.WithLabelValues(variant.Key).Inc()

	if err := s.recorder.RecordView(ctx, exp.ID, variant.Key, visitor, device); err != nil {
		ev := log.Warn()
		if store.IsNotFound(err) {
			ev = log.Info()
		}
		ev.Err(err).Int64("experiment_id", exp.ID).Str("variant", variant.Key).Msg("view not recorded")
	}

	content := contentOf(variant)
	split := exp.SplitA
	writeJSON(w, r, http.StatusOK, VariantResponse{
		Active:         true,
		ExperimentID:   exp.ID,
		ExperimentName: exp.Name,
		Variant:        &content,
		SplitA:         &split,
		DeviceType:     string(device),
	})
}

type EventRequest struct {
	ExperimentID int64  `json:"experiment_id" validate:"required,gt=0"`
	EventType    string `json:"event_type" validate:"required,oneof=click conversion"`
}

type EventResponse struct {
	Recorded   bool   `json:"recorded"`
	VariantKey string `json:"variant_key,omitempty"`
}

// handleEvent records a click or conversion. The variant is derived again
// from the request so callers cannot pick one.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()
	log := logging.Ctx(ctx).With().Int64("experiment_id", req.ExperimentID).Str("type", req.EventType).Logger()

	exp, err := s.store.GetExperiment(ctx, req.ExperimentID)
	if store.IsNotFound(err) {
		log.Info().Msg("event for unknown experiment dropped")
		writeJSON(w, r, http.StatusOK, EventResponse{Recorded: false})
		return
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	ua := r.UserAgent()
	visitor := fingerprint.Hash(ua, fingerprint.ClientAddress(r))
	variant, err := bucketing.Assign(visitor, exp, exp.Variants)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	err = s.recorder.Record(ctx, store.EventType(req.EventType), exp.ID, variant.Key, visitor, fingerprint.Device(ua))
	switch {
	case store.IsNotFound(err):
		log.Info().Err(err).Str("variant", variant.Key).Msg("event dropped")
		writeJSON(w, r, http.StatusOK, EventResponse{Recorded: false})
	case err != nil:
		writeStoreError(w, r, err)
	default:
		writeJSON(w, r, http.StatusOK, EventResponse{Recorded: true, VariantKey: variant.Key})
	}
}

type VariantStats struct {
	VariantContent
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
	Conversions int64 `json:"conversions"`
}

type ExperimentResponse struct {
	ID                  int64          `json:"id"`
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	Goal                string         `json:"goal"`
	Status              string         `json:"status"`
	SplitA              int            `json:"split_a"`
	AutoWinnerEnabled   bool           `json:"auto_winner_enabled"`
	AutoWinnerThreshold int            `json:"auto_winner_threshold"`
	AutoWinnerDays      int            `json:"auto_winner_days"`
	WinnerVariant       string         `json:"winner_variant,omitempty"`
	StartDate           *time.Time     `json:"start_date,omitempty"`
	EndDate             *time.Time     `json:"end_date,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Variants            []VariantStats `json:"variants"`
}

func experimentResponse(exp *store.Experiment) ExperimentResponse {
	out := ExperimentResponse{
		ID:                  exp.ID,
		Name:                exp.Name,
		Description:         exp.Description,
		Goal:                exp.Goal,
		Status:              string(exp.Status),
		SplitA:              exp.SplitA,
		AutoWinnerEnabled:   exp.AutoWinnerEnabled,
		AutoWinnerThreshold: exp.AutoWinnerThreshold,
		AutoWinnerDays:      exp.AutoWinnerDays,
		WinnerVariant:       exp.WinnerVariant,
		StartDate:           exp.StartDate,
		EndDate:             exp.EndDate,
		CreatedAt:           exp.CreatedAt,
		UpdatedAt:           exp.UpdatedAt,
		Variants:            make([]VariantStats, 0, len(exp.Variants)),
	}
	for _, v := range exp.Variants {
		out.Variants = append(out.Variants, VariantStats{
			VariantContent: contentOf(v),
			Impressions:    v.Impressions,
			Clicks:         v.Clicks,
			Conversions:    v.Conversions,
		})
	}
	return out
}
