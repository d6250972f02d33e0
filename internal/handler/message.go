package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roadmanjs/roadman-chat/internal/chat"
	"github.com/roadmanjs/roadman-chat/internal/middleware"
	"github.com/roadmanjs/roadman-chat/internal/model"
)

type MessageHandler struct {
	messages *chat.MessageService
}

func NewMessageHandler(messages *chat.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

type createMessageRequest struct {
	ConvoID     string   `json:"convo_id"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
}

// Create appends a message to a conversation the caller belongs to and fans
// out last-message pointers, unread counters and events to every member.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := h.messages.CreateMessage(r.Context(), chat.CreateMessageArgs{
		ConvoID:     req.ConvoID,
		Owner:       owner,
		Body:        req.Body,
		Attachments: req.Attachments,
	})
	writeJSON(w, http.StatusOK, res)
}

// List pages a conversation's messages, newest first. Reading a page resets
// the caller's unread counter for that conversation.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	convoID := chi.URLParam(r, "convoID")
	page := h.messages.PaginateMessages(r.Context(), convoID,
		queryTime(r, "before"), queryTime(r, "after"), queryInt(r, "limit", 0), owner)
	writeJSON(w, http.StatusOK, page)
}

// MarkRead zeroes the caller's unread counter for a conversation.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	convoID := chi.URLParam(r, "convoID")
	existed := h.messages.ResetUnread(r.Context(), owner, convoID)
	writeJSON(w, http.StatusOK, model.ResType{Success: true, Data: existed})
}

// Unread returns the caller's unread counter for a conversation.
func (h *MessageHandler) Unread(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	convoID := chi.URLParam(r, "convoID")
	count := h.messages.UnreadCount(r.Context(), owner, convoID)
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Typing broadcasts a typing notice to the other members of a conversation.
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	convoID := chi.URLParam(r, "convoID")
	h.messages.NotifyTyping(r.Context(), convoID, owner)
	writeJSON(w, http.StatusOK, model.ResType{Success: true})
}
