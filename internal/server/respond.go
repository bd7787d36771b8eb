package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/gkobilansky/variant-goat/internal/logging"
	"github.com/gkobilansky/variant-goat/internal/store"
	"github.com/gkobilansky/variant-goat/internal/validation"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fields  any    `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeStoreError maps the error taxonomy onto HTTP.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeJSON(w, r, http.StatusBadRequest, errorBody{Error: errorDetail{
			Code:    "VALIDATION_FAILED",
			Message: verr.Error(),
			Fields:  verr.Fields,
		}})
		return
	}

	switch store.KindOf(err) {
	case store.KindConfiguration:
		writeError(w, r, http.StatusUnprocessableEntity, "CONFIGURATION_ERROR", err.Error())
	case store.KindNotFound:
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case store.KindState:
		writeError(w, r, http.StatusConflict, "STATE_ERROR", err.Error())
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("storage failure")
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_ERROR", "storage unavailable")
	}
}

// decodeJSON reads a single JSON object into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeStoreError(w, r, err)
		return false
	}
	return true
}
