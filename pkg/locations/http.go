package locations

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/gateway/auth"
	"github.com/rxlocator/platform/pkg/locator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/locations", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/locations", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/locations/{label}", h.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/locations/{label}/primary", h.handleSetPrimary).Methods(http.MethodPut)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	locs, err := h.service.List(r.Context(), id.UserID)
	if err != nil {
		locator.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": locs})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req models.CreateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		locator.WriteError(w, &locator.Error{Kind: locator.KindValidation, Message: "invalid request body"})
		return
	}
	loc, err := h.service.Create(r.Context(), id.UserID, req)
	if err != nil {
		locator.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"location": loc})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id.UserID, mux.Vars(r)["label"]); err != nil {
		locator.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetPrimary(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.service.SetPrimary(r.Context(), id.UserID, mux.Vars(r)["label"]); err != nil {
		locator.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "missing identity"})
	}
	return id, ok
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
