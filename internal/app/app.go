// Package app wires the control plane's dependencies together and runs the
// process in one of four modes: api, worker, migrate, seed-admin.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/vibeforge/controlplane/internal/config"
	"github.com/vibeforge/controlplane/internal/crypto"
	"github.com/vibeforge/controlplane/internal/httpserver"
	"github.com/vibeforge/controlplane/internal/middleware"
	"github.com/vibeforge/controlplane/internal/platform"
	"github.com/vibeforge/controlplane/internal/proxy"
	"github.com/vibeforge/controlplane/internal/ratelimit"
	"github.com/vibeforge/controlplane/internal/seed"
	"github.com/vibeforge/controlplane/internal/telemetry"
	"github.com/vibeforge/controlplane/internal/token"
	"github.com/vibeforge/controlplane/pkg/agentconfig"
	"github.com/vibeforge/controlplane/pkg/assignment"
	"github.com/vibeforge/controlplane/pkg/instance"
	"github.com/vibeforge/controlplane/pkg/session"
	"github.com/vibeforge/controlplane/pkg/usagestats"
	"github.com/vibeforge/controlplane/pkg/user"
)

// loginRateLimitAttempts and loginRateLimitWindow bound the Redis-backed
// login rate limiter when REDIS_URL is configured.
const (
	loginRateLimitAttempts = 10
	loginRateLimitWindow   = 15 * time.Minute
	sessionSweepInterval   = 10 * time.Minute
)

// Run reads config, connects to infrastructure, and dispatches to the mode
// selected by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting controlplane", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if cfg.Mode == "migrate" {
		return platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir)
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
	} else {
		logger.Info("redis disabled (REDIS_URL not set): login rate limiting and instance-event pub/sub are no-ops")
	}

	switch cfg.Mode {
	case "seed-admin":
		return seed.Run(ctx, db, cfg.SeedAdminUsername, cfg.SeedAdminPassword, logger)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// svc bundles every domain service constructed from cfg, db, and rdb. Both
// api and worker mode build the same graph; worker mode just never mounts
// HTTP handlers for it.
type svc struct {
	sessions    *session.Service
	assignments *assignment.Service
	instances   *instance.Service
	supervisor  *instance.Supervisor
	agents      *agentconfig.Service
	usage       *usagestats.Service
	users       *user.Service
	limiter     *ratelimit.Limiter
}

func build(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*svc, error) {
	cipher, err := crypto.NewCipher(cfg.ConfigEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initializing config cipher: %w", err)
	}
	tokens, err := token.NewManager(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("initializing token manager: %w", err)
	}

	instanceStore := instance.NewStore(db)
	assignmentStore := assignment.NewStore(db)
	agentStore := agentconfig.NewStore(db)
	userStore := user.NewStore(db)
	sessionStore := session.NewStore(db)
	usageStore := usagestats.NewStore(db)

	agents := agentconfig.NewService(agentStore, instanceStore, cipher, nil)

	supervisor := instance.NewSupervisor(instanceStore, agents, instance.SupervisorConfig{
		BinPath:             cfg.VibeKanbanBin,
		StartupTimeout:      time.Duration(cfg.InstanceStartupTimeoutSecs) * time.Second,
		ShutdownTimeout:     time.Duration(cfg.InstanceShutdownTimeoutSecs) * time.Second,
		HealthCheckInterval: time.Duration(cfg.InstanceHealthCheckIntervalSecs) * time.Second,
	}, logger, rdb)

	instances := instance.NewService(instanceStore, supervisor, assignmentStore, cfg.InstancesDataRoot, cfg.InstancesPortBase, cfg.InstancesPortMax)
	assignments := assignment.NewService(assignmentStore, instanceStore)

	sessions := session.NewService(sessionStore, tokens, userStore, session.Config{
		TTL:                time.Duration(cfg.SessionTTLSecs) * time.Second,
		RefreshThreshold:   time.Duration(cfg.SessionRefreshThresholdSecs) * time.Second,
		MaxSessionsPerUser: cfg.MaxSessionsPerUser,
	})
	users := user.NewService(userStore, sessions, assignments, instances)
	usage := usagestats.NewService(usageStore)

	var limiter *ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.New(rdb, loginRateLimitAttempts, loginRateLimitWindow)
	}

	return &svc{
		sessions:    sessions,
		assignments: assignments,
		instances:   instances,
		supervisor:  supervisor,
		agents:      agents,
		usage:       usage,
		users:       users,
		limiter:     limiter,
	}, nil
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	s, err := build(cfg, logger, db, rdb)
	if err != nil {
		return err
	}

	if err := s.supervisor.RecoverRunning(ctx); err != nil {
		logger.Error("recovering running instances at startup", "error", err)
	}

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.All()...)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	authMW := middleware.Auth(s.sessions)
	userHandler := user.NewHandler(s.users, int(cfg.SessionTTLSecs), s.limiter)

	srv.APIRouter.Mount("/auth", userHandler.AuthRoutes(s.sessions))

	srv.APIRouter.Route("/my-instances", func(r chi.Router) {
		r.Use(authMW, middleware.RequireAuth)
		r.Mount("/", userHandler.SelfServiceRoutes())
	})

	srv.APIRouter.Route("/users", func(r chi.Router) {
		r.Use(authMW, middleware.RequireAuth, middleware.RequireAdmin)
		r.Mount("/", userHandler.AdminRoutes())
	})

	srv.APIRouter.Route("/instances", func(r chi.Router) {
		r.Use(authMW, middleware.RequireAuth, middleware.RequireAdmin)
		r.Mount("/", instance.NewHandler(s.instances).Routes())
		r.Route("/{id}/agents", func(r chi.Router) {
			r.Mount("/", agentconfig.NewHandler(s.agents).Routes())
		})
		r.Route("/{id}/usage", func(r chi.Router) {
			r.Mount("/", usagestats.NewHandler(s.usage).Routes())
		})
		r.Route("/{id}/users", func(r chi.Router) {
			r.Mount("/", assignment.NewHandler(s.assignments).InstanceUsersRoutes())
		})
	})

	// Usage recording is posted by a workspace's own agent tooling over the
	// loopback interface, not by an end user, so it carries no session.
	srv.APIRouter.Route("/instances/{id}/agents/{agentType}/usage", func(r chi.Router) {
		r.Mount("/", usagestats.NewHandler(s.usage).RecordRoute())
	})

	srv.APIRouter.Mount("/proxy", proxy.New(s.sessions, s.users, s.assignments, s.instances, logger).Routes())

	go func() {
		if err := s.supervisor.Run(ctx); err != nil {
			logger.Error("instance health-check loop exited", "error", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv.Router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs the instance health-check loop and the periodic expired-
// session sweep. It mounts no HTTP server.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	s, err := build(cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	logger.Info("worker started")

	go func() {
		if err := s.supervisor.Run(ctx); err != nil {
			logger.Error("instance health-check loop exited", "error", err)
		}
	}()

	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			n, err := s.sessions.CleanupExpired(ctx)
			if err != nil {
				logger.Error("cleaning up expired sessions", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions cleaned up", "count", n)
			}
		}
	}
}
