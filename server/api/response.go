package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/compose-network/proof-actor/server/api/middleware"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Details   any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteError writes a standardized error response tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, status, errorResponse{Error: ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: middleware.RequestIDFrom(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   details,
	}})
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
