package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gkobilansky/variant-goat/internal/lifecycle"
	"github.com/gkobilansky/variant-goat/internal/store"
)

type ListExperimentsResponse struct {
	Experiments []ExperimentResponse `json:"experiments"`
	Count       int                  `json:"count"`
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	status := store.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "status must be draft, running, paused or completed")
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	exps, err := s.store.ListExperiments(ctx, status)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	resp := ListExperimentsResponse{
		Experiments: make([]ExperimentResponse, 0, len(exps)),
		Count:       len(exps),
	}
	for _, exp := range exps {
		resp.Experiments = append(resp.Experiments, experimentResponse(exp))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func experimentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid experiment id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id, ok := experimentIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	exp, err := s.store.GetExperiment(ctx, id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, experimentResponse(exp))
}

type VariantRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Subtitle    string `json:"subtitle" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
	ButtonText  string `json:"button_text" validate:"max=100"`
	ButtonLink  string `json:"button_link" validate:"max=2000"`
}

type CreateExperimentRequest struct {
	Name                string           `json:"name" validate:"required,max=200"`
	Description         string           `json:"description" validate:"max=2000"`
	Goal                string           `json:"goal" validate:"max=200"`
	SplitA              *int             `json:"split_a" validate:"omitempty,min=0,max=100"`
	AutoWinnerEnabled   *bool            `json:"auto_winner_enabled"`
	AutoWinnerThreshold *int             `json:"auto_winner_threshold" validate:"omitempty,min=0"`
	AutoWinnerDays      *int             `json:"auto_winner_days" validate:"omitempty,min=0"`
	StartDate           *time.Time       `json:"start_date"`
	EndDate             *time.Time       `json:"end_date"`
	Variants            []VariantRequest `json:"variants" validate:"required,len=2,dive"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req CreateExperimentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	draft := lifecycle.Draft{
		Name:                req.Name,
		Description:         req.Description,
		Goal:                req.Goal,
		SplitA:              req.SplitA,
		AutoWinnerEnabled:   req.AutoWinnerEnabled,
		AutoWinnerThreshold: req.AutoWinnerThreshold,
		AutoWinnerDays:      req.AutoWinnerDays,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
	}
	for _, v := range req.Variants {
		draft.Variants = append(draft.Variants, store.Variant{
			Title:       v.Title,
			Subtitle:    v.Subtitle,
			Description: v.Description,
			ButtonText:  v.ButtonText,
			ButtonLink:  v.ButtonLink,
		})
	}

	exp, err := s.controller.Create(r.Context(), draft)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, experimentResponse(exp))
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id, ok := experimentIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	if err := s.store.DeleteExperiment(ctx, id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type StartRequest struct {
	ExperimentID int64 `json:"experiment_id" validate:"required,gt=0"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	exp, err := s.controller.Start(r.Context(), req.ExperimentID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, experimentResponse(exp))
}

type StopRequest struct {
	ExperimentID int64  `json:"experiment_id" validate:"required,gt=0"`
	Status       string `json:"status" validate:"required,oneof=paused completed"`
	// Winner optionally names the winning variant when completing.
	Winner string `json:"winner" validate:"omitempty,max=8"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Winner != "" && req.Status != string(store.StatusCompleted) {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "winner is only allowed when completing")
		return
	}

	var (
		exp *store.Experiment
		err error
	)
	if req.Winner != "" {
		exp, err = s.controller.Complete(r.Context(), req.ExperimentID, req.Winner)
	} else {
		exp, err = s.controller.Stop(r.Context(), req.ExperimentID, store.Status(req.Status))
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, experimentResponse(exp))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verdict, err := s.controller.EvaluateAutoWinner(r.Context(), req.ExperimentID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, verdict)
}

type ConfigResponse struct {
	Active              bool      `json:"active"`
	DefaultSplit        int       `json:"default_split"`
	AutoWinnerEnabled   bool      `json:"auto_winner_enabled"`
	AutoWinnerThreshold int       `json:"auto_winner_threshold"`
	AutoWinnerDays      int       `json:"auto_winner_days"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func configResponse(c *store.GlobalConfig) ConfigResponse {
	return ConfigResponse{
		Active:              c.Active,
		DefaultSplit:        c.DefaultSplit,
		AutoWinnerEnabled:   c.AutoWinnerEnabled,
		AutoWinnerThreshold: c.AutoWinnerThreshold,
		AutoWinnerDays:      c.AutoWinnerDays,
		UpdatedAt:           c.UpdatedAt,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeCtx(r)
	defer cancel()

	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, configResponse(cfg))
}

// ConfigRequest updates the fields that are present and keeps the rest.
type ConfigRequest struct {
	Active              *bool `json:"active"`
	DefaultSplit        *int  `json:"default_split" validate:"omitempty,min=0,max=100"`
	AutoWinnerEnabled   *bool `json:"auto_winner_enabled"`
	AutoWinnerThreshold *int  `json:"auto_winner_threshold" validate:"omitempty,min=0"`
	AutoWinnerDays      *int  `json:"auto_winner_days" validate:"omitempty,min=0"`
}

func (req ConfigRequest) apply(cfg store.GlobalConfig) store.GlobalConfig {
	if req.Active != nil {
		cfg.Active = *req.Active
	}
	if req.DefaultSplit != nil {
		cfg.DefaultSplit = *req.DefaultSplit
	}
	if req.AutoWinnerEnabled != nil {
		cfg.AutoWinnerEnabled = *req.AutoWinnerEnabled
	}
	if req.AutoWinnerThreshold != nil {
		cfg.AutoWinnerThreshold = *req.AutoWinnerThreshold
	}
	if req.AutoWinnerDays != nil {
		cfg.AutoWinnerDays = *req.AutoWinnerDays
	}
	return cfg
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := s.storeCtx(r)
	defer cancel()

	current, err := s.store.GetConfig(ctx)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	updated, err := s.store.UpdateConfig(ctx, req.apply(*current))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, configResponse(updated))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("experiment_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "experiment_id is required")
		return
	}

	report, err := s.aggregator.Metrics(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}
