// Package proxy implements the authenticated reverse proxy: it resolves a
// session token to a user, the user to their current instance, checks the
// assignment, lazily starts the instance if needed, and forwards the
// request to the instance's child process. Grounded on spec §4.7; the
// teacher has no equivalent component, so the forwarding mechanics follow
// net/http's client/server primitives directly rather than a third-party
// proxy library the rest of the stack doesn't otherwise pull in.
package proxy

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/apperr"
	"github.com/vibeforge/controlplane/internal/authctx"
	"github.com/vibeforge/controlplane/internal/httpserver"
	"github.com/vibeforge/controlplane/internal/middleware"
	"github.com/vibeforge/controlplane/internal/telemetry"
	"github.com/vibeforge/controlplane/internal/token"
	"github.com/vibeforge/controlplane/pkg/instance"
)

// maxBodyBytes caps the request body the proxy will read before forwarding,
// per spec's 10 MiB proxy body limit.
const maxBodyBytes = 10 << 20

// hopByHopHeaders (RFC 7230 §6.1) are stripped from the upstream response.
// The forwarded request is built fresh with only Content-Type set, so it
// carries none of them.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

// UserLookup resolves a user's current instance assignment.
type UserLookup interface {
	CurrentInstanceID(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
}

// AssignmentLookup checks whether a user may use a given instance.
type AssignmentLookup interface {
	IsAssigned(ctx context.Context, userID, instanceID uuid.UUID) (bool, error)
}

// InstanceLookup resolves instance state and performs lazy start.
type InstanceLookup interface {
	Get(ctx context.Context, id uuid.UUID) (instance.Info, error)
	Start(ctx context.Context, id uuid.UUID) (instance.Info, error)
}

// Proxy implements the ANY /proxy/{*path} handler.
type Proxy struct {
	verifier    middleware.SessionVerifier
	users       UserLookup
	assignments AssignmentLookup
	instances   InstanceLookup
	client      *http.Client
	logger      *slog.Logger
}

// New creates a Proxy.
func New(verifier middleware.SessionVerifier, users UserLookup, assignments AssignmentLookup, instances InstanceLookup, logger *slog.Logger) *Proxy {
	return &Proxy{
		verifier:    verifier,
		users:       users,
		assignments: assignments,
		instances:   instances,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
	}
}

// Routes returns the /proxy/{*path} route.
func (p *Proxy) Routes() chi.Router {
	r := chi.NewRouter()
	r.HandleFunc("/*", p.handle)
	return r
}

func (p *Proxy) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, inst, ok := p.authorize(w, r)
	if !ok {
		telemetry.ProxyForwardsTotal.WithLabelValues("rejected").Inc()
		return
	}
	_ = id

	outcome := p.forward(w, r, inst)
	telemetry.ProxyForwardsTotal.WithLabelValues(outcome).Inc()
	telemetry.ProxyForwardDuration.WithLabelValues(inst.ID.String()).Observe(time.Since(start).Seconds())
}

// authorize runs steps 1-6 of the proxy contract: token extraction, session
// verification, current-instance presence, assignment check, instance
// lookup, and lazy start.
func (p *Proxy) authorize(w http.ResponseWriter, r *http.Request) (*authctx.Identity, instance.Info, bool) {
	raw := bearerOrCookie(r)
	if raw == "" {
		httpserver.Fail(w, http.StatusUnauthorized, "authentication required")
		return nil, instance.Info{}, false
	}

	id, err := p.verifier.VerifySession(r.Context(), raw)
	if err != nil {
		httpserver.RespondError(w, err)
		return nil, instance.Info{}, false
	}

	currentID, err := p.users.CurrentInstanceID(r.Context(), id.UserID)
	if err != nil {
		httpserver.RespondError(w, err)
		return nil, instance.Info{}, false
	}
	if currentID == nil {
		httpserver.FailWithCode(w, http.StatusBadRequest, "no current instance set", "NO_INSTANCE")
		return nil, instance.Info{}, false
	}

	assigned, err := p.assignments.IsAssigned(r.Context(), id.UserID, *currentID)
	if err != nil {
		httpserver.RespondError(w, err)
		return nil, instance.Info{}, false
	}
	if !assigned {
		httpserver.Fail(w, http.StatusForbidden, "not assigned to this instance")
		return nil, instance.Info{}, false
	}

	inst, err := p.instances.Get(r.Context(), *currentID)
	if err != nil {
		httpserver.RespondError(w, err)
		return nil, instance.Info{}, false
	}

	if inst.Status != instance.StatusRunning {
		if !inst.AutoStart {
			httpserver.FailWithCode(w, http.StatusServiceUnavailable, "instance is not running", "INSTANCE_NOT_RUNNING")
			return nil, instance.Info{}, false
		}
		started, err := p.instances.Start(r.Context(), inst.ID)
		if err != nil {
			httpserver.FailWithCode(w, http.StatusServiceUnavailable, "instance failed to start", "INSTANCE_NOT_RUNNING")
			return nil, instance.Info{}, false
		}
		inst = started
	}

	return id, inst, true
}

// forward builds the target URL and relays the request/response, returning
// a metrics outcome label.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, inst instance.Info) string {
	path := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	target := "http://127.0.0.1:" + strconv.Itoa(inst.Port) + "/api/" + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		httpserver.Fail(w, http.StatusBadRequest, "reading request body")
		return "bad_request"
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(bodyBytes))
	if err != nil {
		httpserver.RespondError(w, apperr.BadGateway("building upstream request"))
		return "proxy_error"
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("proxy forward failed", "instance_id", inst.ID, "error", err)
		httpserver.FailWithCode(w, http.StatusBadGateway, "upstream request failed", "PROXY_ERROR")
		return "proxy_error"
	}
	defer resp.Body.Close()

	for _, h := range hopByHopHeaders {
		resp.Header.Del(h)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Warn("proxy response copy failed", "instance_id", inst.ID, "error", err)
		return "response_read_error"
	}
	return "ok"
}

// bearerOrCookie extracts the raw token the same way middleware.Auth does:
// Authorization header first, falling back to the auth_token cookie.
func bearerOrCookie(r *http.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	if c, err := r.Cookie(token.CookieName); err == nil {
		return c.Value
	}
	return ""
}
