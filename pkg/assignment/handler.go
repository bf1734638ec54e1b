package assignment

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/httpserver"
)

// Handler provides HTTP handlers for assignment routes mounted under
// /instances/{id}/users.
type Handler struct {
	service *Service
}

// NewHandler creates an assignment Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// InstanceUsersRoutes returns the /instances/{id}/users sub-route.
func (h *Handler) InstanceUsersRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleListByInstance)
	return r
}

func (h *Handler) handleListByInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	assignments, err := h.service.ListByInstance(r.Context(), instanceID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, assignments)
}
