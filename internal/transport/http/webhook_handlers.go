package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/luiznunees/backend-canaldireto/internal/observability/metrics"
	obsmw "github.com/luiznunees/backend-canaldireto/internal/observability/middleware"
	"github.com/luiznunees/backend-canaldireto/internal/service"
)

// Provider event names this gateway reacts to. Everything else is
// acknowledged and dropped.
const (
	eventConnectionUpdate = "connection.update"
	eventQRCodeUpdated    = "qrcode.updated"
)

type webhookEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type connectionUpdateData struct {
	State string `json:"state"`
}

type qrcodeUpdatedData struct {
	QRCode json.RawMessage `json:"qrcode"`
}

// providerWebhook receives provider-pushed events. It is deliberately not
// behind the API key: the provider authenticates nothing, so handlers only
// ever write state that the provider is authoritative for anyway.
func (h *handlers) providerWebhook(w http.ResponseWriter, r *http.Request) {
	reqID := obsmw.RequestIDFromContext(r.Context())

	var env webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err))
		return
	}
	metrics.WebhookEventsTotal.WithLabelValues(env.Event).Inc()

	var err error
	switch env.Event {
	case eventConnectionUpdate:
		var data connectionUpdateData
		if jsonErr := json.Unmarshal(env.Data, &data); jsonErr != nil {
			h.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidRequest, jsonErr))
			return
		}
		err = h.instances.ApplyConnectionUpdate(r.Context(), env.Instance, data.State)
	case eventQRCodeUpdated:
		code, jsonErr := decodeWebhookQRCode(env.Data)
		if jsonErr != nil {
			h.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidRequest, jsonErr))
			return
		}
		err = h.instances.ApplyPairingCode(r.Context(), env.Instance, code)
	default:
		slog.Debug("webhook event ignored", "event", env.Event, "instance", env.Instance, "request_id", reqID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeWebhookQRCode accepts both shapes the provider emits: a plain string
// and an object carrying a base64 field.
func decodeWebhookQRCode(data json.RawMessage) (string, error) {
	var wrapper qrcodeUpdatedData
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(wrapper.QRCode, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(wrapper.QRCode, &obj); err != nil {
		return "", err
	}
	if obj.Base64 != "" {
		return obj.Base64, nil
	}
	return obj.Code, nil
}
