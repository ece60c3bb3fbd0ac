package http

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/luiznunees/backend-canaldireto/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type uploadResponse struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handlers) uploadFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: missing file field: %v", service.ErrInvalidRequest, err))
		return
	}
	defer func() { _ = file.Close() }()

	up, err := h.uploads.Save(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:        up.ID,
		URL:       "/files/" + up.ID.String(),
		ExpiresAt: up.ExpiresAt,
	})
}

func (h *handlers) serveFile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid id", service.ErrInvalidRequest))
		return
	}

	up, f, err := h.uploads.Open(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()

	if up.MimeType != "" {
		w.Header().Set("Content-Type", up.MimeType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", up.SizeBytes))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
