package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	obsmw "github.com/luiznunees/backend-canaldireto/internal/observability/middleware"
	"github.com/luiznunees/backend-canaldireto/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrNoActiveInstance),
		errors.Is(err, service.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInstanceNotConnected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps service errors onto the response taxonomy. Unexpected
// internals stay generic outside development; upstream failures keep their
// detail since callers need to know the provider was the problem.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := obsmw.RequestIDFromContext(r.Context())
	status := statusForError(err)

	msg := err.Error()
	if status == http.StatusInternalServerError && h.env != "development" && !errors.Is(err, service.ErrUpstream) {
		msg = "internal server error"
	}

	if status >= 500 {
		slog.Error("request failed", "error", err, "status", status,
			"path", r.URL.Path, "request_id", reqID)
	} else {
		slog.Warn("request rejected", "error", err, "status", status,
			"path", r.URL.Path, "request_id", reqID)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
