package server

import (
	"net/http"

	"github.com/gkobilansky/variant-goat/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// requestID tags the request context (and so every log line written
// through logging.Ctx) with the caller's request id or a fresh one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = logging.NewRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}
