package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vibeforge/controlplane/internal/apperr"
	"github.com/vibeforge/controlplane/internal/telemetry"
)

// stateEventChannel is the Redis pub/sub channel the supervisor publishes
// instance state transitions on, mirroring the teacher's escalation engine's
// use of Publish for alert events. Best-effort: a future UI subscribes live,
// nothing downstream depends on delivery.
const stateEventChannel = "controlplane:instance:state"

// stateEvent is the payload published to stateEventChannel.
type stateEvent struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	At         string `json:"at"`
}

// AgentEnv is a single environment variable an AI agent's configuration
// contributes to a workspace process.
type AgentEnv struct {
	Key   string
	Value string
}

// AgentEnvProvider resolves the per-instance environment variables
// contributed by each enabled AI agent (decrypted API keys, config paths).
// Implemented by pkg/agentconfig; declared here to avoid an import cycle.
type AgentEnvProvider interface {
	EnvForInstance(ctx context.Context, instanceID uuid.UUID, dataDir string) ([]AgentEnv, error)
}

// SupervisorConfig parameterizes the process supervisor.
type SupervisorConfig struct {
	BinPath             string
	StartupTimeout      time.Duration
	ShutdownTimeout     time.Duration
	HealthCheckInterval time.Duration
}

// Supervisor owns the workspace child processes: starting, stopping,
// health-checking, and recovering them across control-plane restarts. All
// database state transitions are serialized per instance so a start and a
// stop racing on the same ID never interleave.
type Supervisor struct {
	store  *Store
	agents AgentEnvProvider
	cfg    SupervisorConfig
	logger *slog.Logger
	rdb    *redis.Client // nil when REDIS_URL is unset; state events are then not published

	mu        sync.Mutex
	processes map[uuid.UUID]*process
	locks     map[uuid.UUID]*sync.Mutex
}

// NewSupervisor creates a Supervisor backed by the given store and agent
// environment provider. rdb may be nil.
func NewSupervisor(store *Store, agents AgentEnvProvider, cfg SupervisorConfig, logger *slog.Logger, rdb *redis.Client) *Supervisor {
	return &Supervisor{
		store:     store,
		agents:    agents,
		cfg:       cfg,
		logger:    logger,
		rdb:       rdb,
		processes: make(map[uuid.UUID]*process),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the per-instance mutex, creating it on first use.
func (sv *Supervisor) lockFor(id uuid.UUID) *sync.Mutex {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	l, ok := sv.locks[id]
	if !ok {
		l = &sync.Mutex{}
		sv.locks[id] = l
	}
	return l
}

func (sv *Supervisor) setProcess(id uuid.UUID, p *process) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if p == nil {
		delete(sv.processes, id)
		return
	}
	sv.processes[id] = p
}

func (sv *Supervisor) getProcess(id uuid.UUID) (*process, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	p, ok := sv.processes[id]
	return p, ok
}

// transition updates an instance's persisted status and records the move on
// the state-transition counter.
func (sv *Supervisor) transition(ctx context.Context, id uuid.UUID, status Status, lastError *string) error {
	if err := sv.store.UpdateStatus(ctx, id, status, lastError); err != nil {
		return err
	}
	telemetry.InstanceStateTransitionsTotal.WithLabelValues(id.String(), string(status)).Inc()
	sv.publishState(ctx, id, status)
	return nil
}

// publishState best-effort publishes a state transition for live subscribers.
// A publish failure is logged, never returned: pub/sub is observability, not
// a correctness dependency.
func (sv *Supervisor) publishState(ctx context.Context, id uuid.UUID, status Status) {
	if sv.rdb == nil {
		return
	}
	payload, err := json.Marshal(stateEvent{
		InstanceID: id.String(),
		Status:     string(status),
		At:         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := sv.rdb.Publish(ctx, stateEventChannel, payload).Err(); err != nil {
		sv.logger.Warn("publishing instance state event", "instance_id", id, "error", err)
	}
}

// Start brings an instance from stopped to running: assemble environment,
// spawn the child process, and block until it reports healthy or the
// startup timeout elapses. A no-op if already running.
func (sv *Supervisor) Start(ctx context.Context, id uuid.UUID) error {
	lock := sv.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := sv.store.Get(ctx, id)
	if err != nil {
		return apperr.NotFound("instance not found")
	}
	if inst.Status == StatusRunning {
		return nil
	}

	if err := sv.transition(ctx, id, StatusStarting, nil); err != nil {
		return fmt.Errorf("marking instance starting: %w", err)
	}

	env, err := sv.prepareEnvironment(ctx, inst)
	if err != nil {
		errMsg := fmt.Sprintf("preparing environment: %v", err)
		_ = sv.transition(ctx, id, StatusError, &errMsg)
		return apperr.Internal("preparing instance environment", err)
	}

	proc, err := spawn(ctx, sv.cfg.BinPath, env, sv.logger, id.String())
	if err != nil {
		errMsg := fmt.Sprintf("spawning process: %v", err)
		_ = sv.transition(ctx, id, StatusError, &errMsg)
		return apperr.Internal("spawning instance process", err)
	}
	sv.setProcess(id, proc)

	go sv.reapOnExit(id, proc)

	if err := waitForHealthy(ctx, inst.Port, sv.cfg.StartupTimeout); err != nil {
		sv.killLocked(id)
		errMsg := fmt.Sprintf("health check failed: %v", err)
		_ = sv.transition(ctx, id, StatusError, &errMsg)
		return apperr.Timeout("instance did not become healthy in time")
	}

	if err := sv.transition(ctx, id, StatusRunning, nil); err != nil {
		return fmt.Errorf("marking instance running: %w", err)
	}
	if err := sv.store.UpdateHealth(ctx, id, HealthHealthy, time.Now()); err != nil {
		return fmt.Errorf("recording instance health: %w", err)
	}
	sv.logger.Info("instance started", "instance_id", id, "port", inst.Port, "pid", proc.pid())
	return nil
}

// reapOnExit waits for an externally-terminated process (crashed, killed out
// of band) and clears its handle so a later Start doesn't see a stale entry.
func (sv *Supervisor) reapOnExit(id uuid.UUID, p *process) {
	_ = p.wait()
	sv.mu.Lock()
	if sv.processes[id] == p {
		delete(sv.processes, id)
	}
	sv.mu.Unlock()
}

// Stop brings an instance from running to stopped: SIGTERM, wait up to the
// shutdown timeout, then SIGKILL. A no-op if already stopped.
func (sv *Supervisor) Stop(ctx context.Context, id uuid.UUID) error {
	lock := sv.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	inst, err := sv.store.Get(ctx, id)
	if err != nil {
		return apperr.NotFound("instance not found")
	}
	if inst.Status == StatusStopped {
		return nil
	}

	if err := sv.transition(ctx, id, StatusStopping, nil); err != nil {
		return fmt.Errorf("marking instance stopping: %w", err)
	}

	sv.stopLocked(id)

	if err := sv.transition(ctx, id, StatusStopped, nil); err != nil {
		return fmt.Errorf("marking instance stopped: %w", err)
	}
	if err := sv.store.UpdateHealth(ctx, id, HealthUnknown, time.Now()); err != nil {
		return fmt.Errorf("recording instance health: %w", err)
	}
	sv.logger.Info("instance stopped", "instance_id", id)
	return nil
}

// stopLocked performs the graceful-then-forced shutdown. Caller must hold
// the instance's lock.
func (sv *Supervisor) stopLocked(id uuid.UUID) {
	proc, ok := sv.getProcess(id)
	if !ok {
		return
	}
	sv.setProcess(id, nil)

	if err := proc.terminate(); err != nil {
		sv.logger.Warn("sending SIGTERM failed", "instance_id", id, "error", err)
	}

	done := make(chan struct{})
	go func() {
		_ = proc.wait()
		close(done)
	}()

	select {
	case <-done:
		sv.logger.Debug("instance exited gracefully", "instance_id", id)
	case <-time.After(sv.cfg.ShutdownTimeout):
		sv.logger.Warn("instance did not exit in time, sending SIGKILL", "instance_id", id)
		_ = proc.kill()
		<-done
	}
}

// killLocked force-kills without waiting for graceful shutdown, used when
// the health check times out during Start. Caller must hold the instance's
// lock.
func (sv *Supervisor) killLocked(id uuid.UUID) {
	proc, ok := sv.getProcess(id)
	if !ok {
		return
	}
	sv.setProcess(id, nil)
	_ = proc.kill()
}

// Restart stops then starts an instance.
func (sv *Supervisor) Restart(ctx context.Context, id uuid.UUID) error {
	if err := sv.Stop(ctx, id); err != nil {
		return err
	}
	return sv.Start(ctx, id)
}

// HealthCheck probes a running instance's health endpoint and records the
// result. Non-running instances are reported unknown without a network call.
func (sv *Supervisor) HealthCheck(ctx context.Context, id uuid.UUID) (HealthStatus, error) {
	inst, err := sv.store.Get(ctx, id)
	if err != nil {
		return HealthUnknown, apperr.NotFound("instance not found")
	}
	if inst.Status != StatusRunning {
		return HealthUnknown, nil
	}

	probeStart := time.Now()
	healthy := probeHealth(ctx, inst.Port)
	health := HealthUnhealthy
	result := "unhealthy"
	if healthy {
		health = HealthHealthy
		result = "healthy"
	}
	telemetry.HealthProbeDuration.WithLabelValues(id.String(), result).Observe(time.Since(probeStart).Seconds())

	if err := sv.store.UpdateHealth(ctx, id, health, time.Now()); err != nil {
		return health, fmt.Errorf("recording health check result: %w", err)
	}
	return health, nil
}

// RecoverRunning is called once at control-plane startup. Every instance the
// database still records as running is probed; unhealthy ones are marked
// stopped and, if auto_start is set, restarted.
func (sv *Supervisor) RecoverRunning(ctx context.Context) error {
	instances, err := sv.store.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("listing running instances: %w", err)
	}

	for _, inst := range instances {
		sv.logger.Info("checking recovered instance", "instance_id", inst.ID)
		if probeHealth(ctx, inst.Port) {
			if err := sv.store.UpdateHealth(ctx, inst.ID, HealthHealthy, time.Now()); err != nil {
				sv.logger.Error("recording health for recovered instance", "instance_id", inst.ID, "error", err)
			}
			continue
		}

		sv.logger.Warn("recovered instance unhealthy, marking stopped", "instance_id", inst.ID)
		if err := sv.transition(ctx, inst.ID, StatusStopped, nil); err != nil {
			sv.logger.Error("marking recovered instance stopped", "instance_id", inst.ID, "error", err)
			continue
		}

		if inst.AutoStart {
			if err := sv.Start(ctx, inst.ID); err != nil {
				sv.logger.Error("restarting recovered instance", "instance_id", inst.ID, "error", err)
			}
		}
	}
	return nil
}

// Run periodically health-checks every running instance until ctx is
// cancelled.
func (sv *Supervisor) Run(ctx context.Context) error {
	sv.logger.Info("instance health-check loop started", "interval", sv.cfg.HealthCheckInterval)
	ticker := time.NewTicker(sv.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sv.logger.Info("instance health-check loop stopped")
			return nil
		case <-ticker.C:
			sv.tick(ctx)
		}
	}
}

func (sv *Supervisor) tick(ctx context.Context) {
	sv.refreshStateGauge(ctx)

	instances, err := sv.store.ListRunning(ctx)
	if err != nil {
		sv.logger.Error("listing running instances for health check", "error", err)
		return
	}
	for _, inst := range instances {
		if _, err := sv.HealthCheck(ctx, inst.ID); err != nil {
			sv.logger.Error("health check failed", "instance_id", inst.ID, "error", err)
		}
	}
}

// refreshStateGauge recomputes the by-state instance gauge from the current
// database state.
func (sv *Supervisor) refreshStateGauge(ctx context.Context) {
	all, err := sv.store.List(ctx)
	if err != nil {
		sv.logger.Error("listing instances for state gauge", "error", err)
		return
	}
	counts := map[Status]int{
		StatusStopped:  0,
		StatusStarting: 0,
		StatusRunning:  0,
		StatusStopping: 0,
		StatusError:    0,
	}
	for _, inst := range all {
		counts[inst.Status]++
	}
	for status, count := range counts {
		telemetry.InstancesByState.WithLabelValues(string(status)).Set(float64(count))
	}
}

// prepareEnvironment assembles the child process environment: networking
// basics plus every enabled AI agent's contributed variables.
func (sv *Supervisor) prepareEnvironment(ctx context.Context, inst Instance) ([]string, error) {
	env := append([]string{}, os.Environ()...)
	env = append(env,
		fmt.Sprintf("PORT=%d", inst.Port),
		fmt.Sprintf("BACKEND_PORT=%d", inst.Port),
		"HOST=127.0.0.1",
		fmt.Sprintf("VIBE_DATA_DIR=%s", inst.DataDir),
		"RUST_LOG=info",
	)

	if sv.agents == nil {
		return env, nil
	}
	agentEnv, err := sv.agents.EnvForInstance(ctx, inst.ID, inst.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving agent environment: %w", err)
	}
	for _, kv := range agentEnv {
		env = append(env, fmt.Sprintf("%s=%s", kv.Key, kv.Value))
	}
	return env, nil
}
