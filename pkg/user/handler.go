package user

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/authctx"
	"github.com/vibeforge/controlplane/internal/httpserver"
	"github.com/vibeforge/controlplane/internal/middleware"
	"github.com/vibeforge/controlplane/internal/ratelimit"
	"github.com/vibeforge/controlplane/internal/token"
)

// Handler provides HTTP handlers for auth, self-service, and admin user routes.
type Handler struct {
	service  *Service
	tokenTTL int // cookie max-age seconds
	limiter  *ratelimit.Limiter // nil when REDIS_URL is unset
}

// NewHandler creates a user Handler. limiter may be nil, in which case login
// attempts are not rate limited.
func NewHandler(service *Service, tokenTTLSeconds int, limiter *ratelimit.Limiter) *Handler {
	return &Handler{service: service, tokenTTL: tokenTTLSeconds, limiter: limiter}
}

// AuthRoutes returns the public /auth/* routes.
func (h *Handler) AuthRoutes(verifier middleware.SessionVerifier) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.With(middleware.Auth(verifier)).Post("/logout", h.handleLogout)
	r.With(middleware.Auth(verifier), middleware.RequireAuth).Get("/me", h.handleMe)
	r.With(middleware.Auth(verifier), middleware.RequireAuth).Put("/password", h.handleChangePassword)
	return r
}

// SelfServiceRoutes returns the authenticated /my-instances routes.
func (h *Handler) SelfServiceRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleMyInstances)
	r.Get("/current", h.handleCurrentInstance)
	r.Put("/current", h.handleSwitchInstance)
	r.Get("/current/health", h.handleCurrentInstanceHealth)
	return r
}

// AdminRoutes returns the admin-only /users routes.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Get("/{id}/instances", h.handleListInstances)
	r.Post("/{id}/instances", h.handleAssignInstances)
	r.Delete("/{id}/instances/{instanceID}", h.handleUnassignInstance)
	r.Put("/{id}/activate", h.handleSetActive)
	r.Put("/{id}/password", h.handleSetPassword)
	return r
}

func clientIP(r *http.Request) *string {
	ip := r.RemoteAddr
	if ip == "" {
		return nil
	}
	return &ip
}

func userAgent(r *http.Request) *string {
	ua := r.UserAgent()
	if ua == "" {
		return nil
	}
	return &ua
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	info, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusCreated, info)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if h.limiter != nil {
		res, err := h.limiter.Check(r.Context(), ip)
		if err != nil {
			httpserver.RespondError(w, err)
			return
		}
		if !res.Allowed {
			httpserver.FailWithCode(w, http.StatusTooManyRequests, "too many login attempts, try again later", "RATE_LIMITED")
			return
		}
	}

	result, err := h.service.Login(r.Context(), req, clientIP(r), userAgent(r))
	if err != nil {
		if h.limiter != nil {
			h.limiter.Record(r.Context(), ip)
		}
		httpserver.RespondError(w, err)
		return
	}
	if h.limiter != nil {
		h.limiter.Reset(r.Context(), ip)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     token.CookieName,
		Value:    result.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   h.tokenTTL,
	})

	httpserver.OK(w, http.StatusOK, map[string]any{
		"token":               result.Token,
		"user":                result.User,
		"instances":           result.Instances,
		"current_instance_id": result.CurrentInstanceID,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw := bearerOrCookie(r)
	if raw != "" {
		if err := h.service.Logout(r.Context(), raw); err != nil {
			httpserver.RespondError(w, err)
			return
		}
	}
	token.ClearCookie(w)
	httpserver.OK(w, http.StatusOK, nil)
}

func bearerOrCookie(r *http.Request) string {
	if c, err := r.Cookie(token.CookieName); err == nil {
		return c.Value
	}
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id := authctx.FromContext(r.Context())
	info, instances, err := h.service.GetCurrentUser(r.Context(), id.UserID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, map[string]any{
		"user":      info,
		"instances": instances,
	})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := authctx.FromContext(r.Context())
	var req ChangePasswordRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.service.ChangePassword(r.Context(), id.UserID, req); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, nil)
}

func (h *Handler) handleMyInstances(w http.ResponseWriter, r *http.Request) {
	id := authctx.FromContext(r.Context())
	instances, current, err := h.service.MyInstances(r.Context(), id.UserID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, map[string]any{
		"instances":           instances,
		"current_instance_id": current,
	})
}

func (h *Handler) handleCurrentInstance(w http.ResponseWriter, r *http.Request) {
	id := authctx.FromContext(r.Context())
	details, err := h.service.CurrentInstanceDetails(r.Context(), id.UserID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, details)
}

func (h *Handler) handleCurrentInstanceHealth(w http.ResponseWriter, r *http.Request) {
	id := authctx.FromContext(r.Context())
	health, err := h.service.CurrentInstanceHealth(r.Context(), id.UserID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, map[string]any{"health_status": health})
}

func (h *Handler) handleSwitchInstance(w http.ResponseWriter, r *http.Request) {
	id := authctx.FromContext(r.Context())
	var req SwitchInstanceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	summary, err := h.service.SwitchInstance(r.Context(), id.UserID, req.InstanceID)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, summary)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, users)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	info, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusCreated, info)
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "invalid "+param)
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
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
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	info, err := h.service.UpdateUser(r.Context(), id, req)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, info)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	instances, err := h.service.ListUserInstances(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, instances)
}

func (h *Handler) handleAssignInstances(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req AssignInstancesRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	admin := authctx.FromContext(r.Context())
	if err := h.service.AssignInstances(r.Context(), admin.UserID, id, req.InstanceIDs); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, nil)
}

func (h *Handler) handleUnassignInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	instanceID, ok := parseID(w, r, "instanceID")
	if !ok {
		return
	}
	if err := h.service.UnassignInstance(r.Context(), id, instanceID); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, nil)
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.service.SetActive(r.Context(), id, req.IsActive); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, nil)
}

func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req SetPasswordRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.service.SetPassword(r.Context(), id, req.NewPassword); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.OK(w, http.StatusOK, nil)
}
