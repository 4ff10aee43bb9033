// Package api exposes the CRUD layer over HTTP: user, chat, and message
// resources backed by the document store, mirroring the /user, /chats, and
// /message route groups of the service's public API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/chatnow/chatnow-server/internal/store"
)

// Handler carries the dependencies shared by every route handler.
type Handler struct {
	log      *slog.Logger
	validate *validator.Validate
	stores   *store.Stores
}

// NewHandler builds the CRUD handler set on top of the given stores.
func NewHandler(log *slog.Logger, stores *store.Stores) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		validate: validator.New(),
		stores:   stores,
	}
}

// Register mounts all CRUD routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/user", h.CreateUser).Methods(http.MethodPost)
	r.HandleFunc("/user", h.ListUsers).Methods(http.MethodGet)
	r.HandleFunc("/user/{id}", h.GetUser).Methods(http.MethodGet)

	r.HandleFunc("/chats", h.CreateChat).Methods(http.MethodPost)
	r.HandleFunc("/chats", h.ListChats).Methods(http.MethodGet)
	r.HandleFunc("/chats/{id}", h.GetChat).Methods(http.MethodGet)

	r.HandleFunc("/message", h.SendMessage).Methods(http.MethodPost)
	r.HandleFunc("/message/{chatID}", h.ListMessages).Methods(http.MethodGet)
}

// decode parses and validates a JSON request body. A false return means the
// response has already been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("error writing response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps store errors onto HTTP statuses. Unexpected errors are
// logged with detail but answered with a generic body.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrEmailExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUnknownUser):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotInChat):
		h.writeError(w, http.StatusForbidden, err.Error())
	default:
		h.log.Error("store error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
