package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatnow/chatnow-server/internal/store"
)

type createUserRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=64"`
	Email string `json:"email" validate:"required,email"`
}

// CreateUser registers a new user document.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.stores.Users.Create(req.Name, req.Email)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// ListUsers returns all users, optionally filtered by the search query
// parameter matching name or email.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.stores.Users.List(r.URL.Query().Get("search"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if users == nil {
		users = []store.User{}
	}
	h.writeJSON(w, http.StatusOK, users)
}

// GetUser returns a single user by ID.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.stores.Users.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}
