package agentconfig

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/httpserver"
)

// Handler provides HTTP handlers for admin agent-config routes, mounted
// under /instances/{id}/agents.
type Handler struct {
	service *Service
}

// NewHandler creates an agentconfig Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the /instances/{id}/agents sub-routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Put("/{agentType}", h.handleSetConfig)
	r.Delete("/{agentType}", h.handleDelete)
	r.Post("/{agentType}/test", h.handleTestConnection)
	return r
}

func (h *Handler) parseIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, AgentType, bool) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid instance id")
		return uuid.UUID{}, "", false
	}
	agentType, err := ParseAgentType(chi.URLParam(r, "agentType"))
	if err != nil {
		httpserver.RespondError(w, err)
		return uuid.UUID{}, "", false
	}
	return instanceID, agentType, true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	instanceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	configs, listErr := h.service.List(r.Context(), instanceID)
	if listErr != nil {
		httpserver.RespondError(w, listErr)
		return
	}
	httpserver.OK(w, http.StatusOK, configs)
}

func (h *Handler) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	instanceID, agentType, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	var req SetConfigRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	info, err := h.service.SetConfig(r.Context(), instanceID, agentType, req)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, info)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	instanceID, agentType, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), instanceID, agentType); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusNoContent, nil)
}

func (h *Handler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	instanceID, agentType, ok := h.parseIDs(w, r)
	if !ok {
		return
	}
	ok2, err := h.service.TestConnection(r.Context(), instanceID, agentType)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, map[string]any{"success": ok2})
}
