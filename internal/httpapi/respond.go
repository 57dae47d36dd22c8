package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/contentpulse/inspiration-api/internal/apperr"
)

// envelope is the uniform success response shape.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// errorEnvelope is the uniform error response shape. StatusCode repeats
// the HTTP status in the body so clients that swallow transport details
// still see it.
type errorEnvelope struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func respond(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(envelope{Status: "success", Message: message, Data: data})
}

func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if h.logger != nil && status >= 500 {
		h.logger.LogError(ctx, "request failed", err, "status", status)
	}
	if h.metrics != nil {
		h.metrics.RecordError(ctx, "httpapi", apperr.KindOf(err).String())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{
		Status:     "error",
		Message:    apperr.MessageOf(err),
		StatusCode: status,
	})
}
