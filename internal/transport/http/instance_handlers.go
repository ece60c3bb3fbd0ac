package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/luiznunees/backend-canaldireto/internal/domain"
	"github.com/luiznunees/backend-canaldireto/internal/service"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
)

type setupRequest struct {
	UserID string `json:"user_id"`
}

type instanceResponse struct {
	Instance domain.InstanceRecord `json:"instance"`
	QRCode   *string               `json:"qrcode"`
	Message  string                `json:"message,omitempty"`
}

func (h *handlers) setupInstance(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err))
		return
	}
	if req.UserID == "" {
		h.writeError(w, r, fmt.Errorf("%w: user_id is required", service.ErrInvalidRequest))
		return
	}

	res, err := h.instances.Setup(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	msg := "instance synchronized"
	if res.Created {
		status = http.StatusCreated
		msg = "instance created"
	}
	writeJSON(w, status, instanceResponse{Instance: res.Instance, QRCode: res.QRCode, Message: msg})
}

type syncResponse struct {
	Instance      domain.InstanceRecord `json:"instance"`
	QRCode        *string               `json:"qrcode"`
	StatusChanged bool                  `json:"statusChanged"`
}

func (h *handlers) syncStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	res, err := h.instances.Sync(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Instance:      res.Instance,
		QRCode:        res.QRCode,
		StatusChanged: res.StatusChanged,
	})
}

func (h *handlers) disconnectInstance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := h.instances.Disconnect(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instanceResponse{Instance: rec, Message: "instance disconnected"})
}

func (h *handlers) deleteInstance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := h.instances.Delete(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, instanceResponse{Instance: rec, Message: "instance deleted"})
}

// pairingQR serves the stored pairing code as a scannable PNG. The provider
// hands out either a ready-made data-URI image or a raw pairing string; the
// latter gets rendered here.
func (h *handlers) pairingQR(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := h.instances.ActiveInstance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rec.QRCode == nil || *rec.QRCode == "" {
		h.writeError(w, r, fmt.Errorf("%w: no pairing code for user %s", service.ErrNoActiveInstance, userID))
		return
	}

	png, err := pairingCodePNG(*rec.QRCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func pairingCodePNG(code string) ([]byte, error) {
	raw := code
	if i := strings.Index(raw, ";base64,"); strings.HasPrefix(raw, "data:") && i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	if data, err := base64.StdEncoding.DecodeString(raw); err == nil && bytes.HasPrefix(data, pngMagic) {
		return data, nil
	}
	return qrcode.Encode(code, qrcode.Medium, 256)
}
