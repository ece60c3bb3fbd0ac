package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/luiznunees/backend-canaldireto/internal/service"
)

func (h *handlers) createCampaign(w http.ResponseWriter, r *http.Request) {
	var in service.CampaignInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err))
		return
	}

	status, body, err := h.campaigns.Launch(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// The workflow engine's verdict is relayed unchanged.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type sendMessageRequest struct {
	UserID string `json:"user_id"`
	Number string `json:"number"`
	Text   string `json:"text"`
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err))
		return
	}
	if req.UserID == "" {
		h.writeError(w, r, fmt.Errorf("%w: user_id is required", service.ErrInvalidRequest))
		return
	}

	out, err := h.instances.SendText(r.Context(), req.UserID, req.Number, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
