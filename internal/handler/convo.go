package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roadmanjs/roadman-chat/internal/chat"
	"github.com/roadmanjs/roadman-chat/internal/middleware"
)

type ConvoHandler struct {
	convos *chat.ConvoService
}

func NewConvoHandler(convos *chat.ConvoService) *ConvoHandler {
	return &ConvoHandler{convos: convos}
}

type createConvoRequest struct {
	Members []string `json:"members"`
	Group   bool     `json:"group"`
}

type startConvoRequest struct {
	Members []string `json:"members"`
}

// Create makes a conversation and materializes one copy per member. The
// caller is always included in the member list.
func (h *ConvoHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createConvoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	members := append([]string{owner}, req.Members...)
	res := h.convos.CreateConvo(r.Context(), members, req.Group)
	writeJSON(w, http.StatusOK, res)
}

// Start finds or creates the direct conversation between the caller and one
// other member. Calling it twice with the same pair returns the same convo.
func (h *ConvoHandler) Start(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req startConvoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	members := req.Members
	if len(members) == 1 {
		members = append(members, owner)
	}
	res := h.convos.StartConvo(r.Context(), members, owner)
	writeJSON(w, http.StatusOK, res)
}

// Get returns the caller's copy of a conversation, or null when it does not
// exist or the caller is not a member. The id may be either the logical
// conversation id or the record id of one materialized copy.
func (h *ConvoHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "convoID")
	c := h.convos.ConvoForOwner(r.Context(), id, owner)
	if c == nil {
		if rec := h.convos.ConvoByID(r.Context(), id); rec != nil && rec.Owner == owner {
			c = rec
		}
	}
	writeJSON(w, http.StatusOK, c)
}

// List pages the caller's conversations, most recently active first.
func (h *ConvoHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page := h.convos.PaginateConvos(r.Context(), owner,
		queryTime(r, "before"), queryTime(r, "after"), queryInt(r, "limit", 0))
	writeJSON(w, http.StatusOK, page)
}
