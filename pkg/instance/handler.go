package instance

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/httpserver"
)

// Handler provides HTTP handlers for admin instance routes.
type Handler struct {
	service *Service
}

// NewHandler creates an instance Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the admin-only /instances routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/start", h.handleStart)
	r.Post("/{id}/stop", h.handleStop)
	r.Post("/{id}/restart", h.handleRestart)
	r.Get("/{id}/health", h.handleHealth)
	return r
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid id")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	instances, err := h.service.List(r.Context())
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, instances)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	info, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusCreated, info)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	info, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, info)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	info, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, info)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusNoContent, nil)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	info, err := h.service.Start(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, info)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	info, err := h.service.Stop(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, info)
}

func (h *Handler) handleRestart(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	info, err := h.service.Restart(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, info)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	health, err := h.service.CheckHealth(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, map[string]any{"health_status": health})
}
