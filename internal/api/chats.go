package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatnow/chatnow-server/internal/store"
)

type createChatRequest struct {
	Name    string   `json:"name" validate:"max=64"`
	Users   []string `json:"users" validate:"required,min=2,unique,dive,required"`
	IsGroup bool     `json:"isGroup"`
}

// CreateChat creates a chat document with the given participants. Every
// participant must be a registered user.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	chat, err := h.stores.Chats.Create(req.Name, req.Users, req.IsGroup)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, chat)
}

// ListChats returns the chats the user given by the user query parameter
// participates in.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	chats, err := h.stores.Chats.ListForUser(userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if chats == nil {
		chats = []store.Chat{}
	}
	h.writeJSON(w, http.StatusOK, chats)
}

// GetChat returns a single chat by ID.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.stores.Chats.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, chat)
}
