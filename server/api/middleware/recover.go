package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Recover answers a panicking handler with a JSON 500 carrying the request id, so callers
// can match the failure to the logged stack.
func Recover(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestID := RequestIDFrom(r.Context())
				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("HTTP handler panicked")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{
					"code":       "internal_error",
					"message":    http.StatusText(http.StatusInternalServerError),
					"request_id": requestID,
					"timestamp":  time.Now().UTC().Format(time.RFC3339),
				}})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
