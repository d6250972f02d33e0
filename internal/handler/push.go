package handler

import (
	"encoding/json"
	"net/http"

	"github.com/roadmanjs/roadman-chat/internal/middleware"
	"github.com/roadmanjs/roadman-chat/internal/model"
	"github.com/roadmanjs/roadman-chat/internal/push"
)

// PushHandler registers and removes Web Push subscriptions. A nil sender
// turns every endpoint into a polite no-op so the routes can stay mounted.
type PushHandler struct {
	sender    *push.Sender
	publicKey string
}

func NewPushHandler(sender *push.Sender, publicKey string) *PushHandler {
	return &PushHandler{sender: sender, publicKey: publicKey}
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// PublicKey hands the VAPID public key to the browser.
func (h *PushHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.publicKey})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var sub push.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid subscription")
		return
	}

	if err := h.sender.Subscribe(r.Context(), owner, sub); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store subscription")
		return
	}
	writeJSON(w, http.StatusOK, model.ResType{Success: true})
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sender.Unsubscribe(r.Context(), owner, req.Endpoint); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	writeJSON(w, http.StatusOK, model.ResType{Success: true})
}
