package locator

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rxlocator/platform/pkg/common/models"
	"github.com/rxlocator/platform/pkg/gateway/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/search", h.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/search", h.handleSearchQuery).Methods(http.MethodGet)
	r.HandleFunc("/providers/{npi:[0-9]+}", h.handleGetProvider).Methods(http.MethodGet)
	r.HandleFunc("/me", h.handleMe).Methods(http.MethodGet)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, validationError("invalid request body"))
		return
	}
	h.search(w, r, id, req)
}

func (h *Handler) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	req, err := searchRequestFromQuery(r.URL.Query())
	if err != nil {
		WriteError(w, err)
		return
	}
	h.search(w, r, id, req)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, id auth.Identity, req models.SearchRequest) {
	result, err := h.service.Search(r.Context(), id.UserID, req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	npi, err := strconv.ParseInt(mux.Vars(r)["npi"], 10, 64)
	if err != nil {
		WriteError(w, validationError("invalid provider id"))
		return
	}
	provider, err := h.service.Provider(r.Context(), npi)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"provider": provider})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	profile, err := h.service.Profile(r.Context(), id.UserID, id.Email)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profile": profile})
}

func searchRequestFromQuery(q url.Values) (models.SearchRequest, error) {
	req := models.SearchRequest{
		DrugName:      q.Get("drugName"),
		TaxonomyClass: q.Get("taxonomyClass"),
		SortBy:        q.Get("sortBy"),
		LocationName:  q.Get("locationName"),
		ZipCode:       q.Get("zipCode"),
	}

	if q.Has("radiusMiles") {
		f, err := strconv.ParseFloat(strings.TrimSpace(q.Get("radiusMiles")), 64)
		if err != nil {
			return req, validationError("radiusMiles must be a number")
		}
		req.RadiusMiles = &f
	}
	var err error
	if req.MinClaims, err = intParam(q, "minClaims"); err != nil {
		return req, err
	}
	if q.Has("pageSize") {
		n, err := intParam(q, "pageSize")
		if err != nil {
			return req, err
		}
		req.PageSize = &n
	}
	if req.Cursor, err = ParseCursor(q.Get("cursor")); err != nil {
		return req, err
	}
	return req, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, validationError("%s must be an integer", name)
	}
	return n, nil
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindOriginNotFound, KindLocationResolution:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as {"error": kind, "message": msg}. Store and
// unclassified failures get a generic message.
func WriteError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	msg := MessageOf(err)
	switch kind {
	case KindTransientStore:
		msg = "service temporarily unavailable"
	case "":
		kind = "internal"
		msg = "internal error"
	}
	writeJSON(w, StatusFor(err), map[string]string{"error": string(kind), "message": msg})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "missing identity"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
