package usagestats

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/httpserver"
	"github.com/vibeforge/controlplane/pkg/agentconfig"
)

// Handler provides HTTP handlers for usage-stats routes, mounted under
// /instances/{id}/usage and /instances/{id}/agents/{agentType}/usage.
type Handler struct {
	service *Service
}

// NewHandler creates a usagestats Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /instances/{id}/usage sub-routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleSummary)
	r.Get("/raw", h.handleList)
	return r
}

// RecordRoute returns the single-route sub-router for recording usage,
// mounted at /instances/{id}/agents/{agentType}/usage.
func (h *Handler) RecordRoute() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleRecord)
	return r
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	q := r.URL.Query()
	summary, err := h.service.Summary(r.Context(), instanceID, q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, summary)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	q := r.URL.Query()
	buckets, err := h.service.List(r.Context(), instanceID, q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, buckets)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	agentType, err := agentconfig.ParseAgentType(chi.URLParam(r, "agentType"))
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	var req IncrementRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	bucket, err := h.service.Record(r.Context(), instanceID, agentType, time.Now().UTC().Format("2006-01-02"), req)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, bucket)
}
