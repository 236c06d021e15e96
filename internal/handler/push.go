package handler

import (
	"encoding/json"
	"net/http"

	"github.com/studygroup/internal/middleware"
	"github.com/studygroup/internal/push"
)

type PushHandler struct {
	client *push.Client
}

func NewPushHandler(client *push.Client) *PushHandler {
	return &PushHandler{client: client}
}

// Subscribe — POST /api/push/subscribe: прокидывает браузерную подписку на
// push-сервис под user_id из сессии.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if !h.client.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "push is not configured")
		return
	}

	var sub push.PushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid subscription")
		return
	}
	if err := h.client.Subscribe(r.Context(), userID, sub); err != nil {
		writeError(w, http.StatusBadGateway, "failed to subscribe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"subscribed": true})
}

// Unsubscribe — DELETE /api/push/subscribe.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if !h.client.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "push is not configured")
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}
	if err := h.client.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		writeError(w, http.StatusBadGateway, "failed to unsubscribe")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"unsubscribed": true})
}
