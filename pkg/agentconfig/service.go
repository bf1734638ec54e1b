package agentconfig

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vibeforge/controlplane/internal/apperr"
	"github.com/vibeforge/controlplane/internal/crypto"
	"github.com/vibeforge/controlplane/pkg/instance"
)

// InstanceLookup resolves an instance's data directory, supplied by
// pkg/instance.Store to avoid an import cycle with instance.Service (which
// itself depends on this package's EnvForInstance via AgentEnvProvider).
type InstanceLookup interface {
	DataDir(ctx context.Context, instanceID uuid.UUID) (string, error)
}

const connectionTestTimeout = 10 * time.Second

// Service implements AI-agent config CRUD, API-key encryption, on-disk
// config materialization, and connection testing.
type Service struct {
	store     *Store
	instances InstanceLookup
	cipher    *crypto.Cipher
	http      *http.Client
}

// NewService creates an agentconfig Service. httpClient is the client used
// for TestConnection's provider probes; pass nil to get the production
// default (a client bounded by connectionTestTimeout). Tests inject their
// own client pointed at an httptest.Server.
func NewService(store *Store, instances InstanceLookup, cipher *crypto.Cipher, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: connectionTestTimeout}
	}
	return &Service{
		store:     store,
		instances: instances,
		cipher:    cipher,
		http:      httpClient,
	}
}

// List returns every agent config for an instance.
func (s *Service) List(ctx context.Context, instanceID uuid.UUID) ([]Info, error) {
	configs, err := s.store.ListByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("listing agent configs: %w", err)
	}
	out := make([]Info, 0, len(configs))
	for _, c := range configs {
		out = append(out, c.ToInfo())
	}
	return out, nil
}

// Get returns a single instance's config for one agent type.
func (s *Service) Get(ctx context.Context, instanceID uuid.UUID, agentType AgentType) (Info, error) {
	c, err := s.store.Get(ctx, instanceID, agentType)
	if err != nil {
		return Info{}, notFoundOrErr(err)
	}
	return c.ToInfo(), nil
}

// SetConfig validates the instance and agent type, encrypts any supplied API
// key, upserts the row, and regenerates the on-disk config file.
func (s *Service) SetConfig(ctx context.Context, instanceID uuid.UUID, agentType AgentType, req SetConfigRequest) (Info, error) {
	dataDir, err := s.instances.DataDir(ctx, instanceID)
	if err != nil {
		return Info{}, apperr.NotFound("instance not found")
	}

	var cipherText *string
	if req.APIKey != nil {
		enc, err := s.cipher.Encrypt(*req.APIKey)
		if err != nil {
			return Info{}, apperr.Internal("encrypting api key", err)
		}
		cipherText = &enc
	}

	var configJSON *string
	if len(req.Config) > 0 {
		raw := string(req.Config)
		configJSON = &raw
	}

	cfg, err := s.store.Upsert(ctx, UpsertParams{
		InstanceID:   instanceID,
		AgentType:    agentType,
		IsEnabled:    req.IsEnabled,
		APIKeyCipher: cipherText,
		ConfigJSON:   configJSON,
		RateLimitRPM: req.RateLimitRPM,
	})
	if err != nil {
		return Info{}, fmt.Errorf("saving agent config: %w", err)
	}

	if err := materialize(dataDir, agentType, cfg.ConfigJSON); err != nil {
		return Info{}, apperr.Internal("writing agent config file", err)
	}

	return cfg.ToInfo(), nil
}

// SetEnabled toggles an agent on or off without touching its credentials.
func (s *Service) SetEnabled(ctx context.Context, instanceID uuid.UUID, agentType AgentType, enabled bool) error {
	if err := s.store.SetEnabled(ctx, instanceID, agentType, enabled); err != nil {
		return notFoundOrErr(err)
	}
	return nil
}

// Delete removes an instance's config for one agent type.
func (s *Service) Delete(ctx context.Context, instanceID uuid.UUID, agentType AgentType) error {
	if err := s.store.Delete(ctx, instanceID, agentType); err != nil {
		return notFoundOrErr(err)
	}
	return nil
}

// TestConnection decrypts the stored API key and makes a single lightweight
// call against the agent's provider to verify it authenticates.
func (s *Service) TestConnection(ctx context.Context, instanceID uuid.UUID, agentType AgentType) (bool, error) {
	cfg, err := s.store.Get(ctx, instanceID, agentType)
	if err != nil {
		return false, notFoundOrErr(err)
	}

	if agentType == AgentOpenCode {
		return true, nil
	}

	if cfg.APIKeyCipher == nil {
		return false, apperr.BadRequest("no api key configured")
	}
	apiKey, err := s.cipher.Decrypt(*cfg.APIKeyCipher)
	if err != nil {
		return false, apperr.Internal("decrypting api key", err)
	}

	switch agentType {
	case AgentClaudeCode:
		return s.probe(ctx, "https://api.anthropic.com/v1/models", func(r *http.Request) {
			r.Header.Set("x-api-key", apiKey)
			r.Header.Set("anthropic-version", "2023-06-01")
		})
	case AgentCodexCLI:
		return s.probe(ctx, "https://api.openai.com/v1/models", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+apiKey)
		})
	case AgentGeminiCLI:
		url := "https://generativelanguage.googleapis.com/v1/models?key=" + apiKey
		return s.probe(ctx, url, func(r *http.Request) {})
	default:
		return false, apperr.BadRequest("unknown agent type: " + string(agentType))
	}
}

func (s *Service) probe(ctx context.Context, url string, decorate func(*http.Request)) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("building connection test request: %w", err)
	}
	decorate(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return false, apperr.BadGateway("connection test failed: " + err.Error())
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// EnvForInstance satisfies instance.AgentEnvProvider: it resolves the
// decrypted environment variables every enabled agent contributes to a
// workspace process's environment.
func (s *Service) EnvForInstance(ctx context.Context, instanceID uuid.UUID, dataDir string) ([]instance.AgentEnv, error) {
	configs, err := s.store.ListEnabledByInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("listing enabled agent configs: %w", err)
	}

	var env []instance.AgentEnv
	for _, c := range configs {
		var apiKey string
		if c.APIKeyCipher != nil {
			apiKey, err = s.cipher.Decrypt(*c.APIKeyCipher)
			if err != nil {
				return nil, apperr.Internal("decrypting api key for "+string(c.AgentType), err)
			}
		}

		switch c.AgentType {
		case AgentClaudeCode:
			if apiKey != "" {
				env = append(env, instance.AgentEnv{Key: "ANTHROPIC_API_KEY", Value: apiKey})
			}
			env = append(env, instance.AgentEnv{Key: "CLAUDE_CONFIG_DIR", Value: agentConfigDir(dataDir, AgentClaudeCode)})
		case AgentCodexCLI:
			if apiKey != "" {
				env = append(env, instance.AgentEnv{Key: "OPENAI_API_KEY", Value: apiKey})
			}
			env = append(env, instance.AgentEnv{Key: "CODEX_CONFIG_HOME", Value: agentConfigDir(dataDir, AgentCodexCLI)})
		case AgentGeminiCLI:
			if apiKey != "" {
				env = append(env, instance.AgentEnv{Key: "GOOGLE_API_KEY", Value: apiKey})
			}
			env = append(env, instance.AgentEnv{Key: "GEMINI_CONFIG_DIR", Value: agentConfigDir(dataDir, AgentGeminiCLI)})
		case AgentOpenCode:
			env = append(env, instance.AgentEnv{Key: "OPENCODE_CONFIG_DIR", Value: agentConfigDir(dataDir, AgentOpenCode)})
		}
	}
	return env, nil
}

func notFoundOrErr(err error) error {
	if err == pgx.ErrNoRows {
		return apperr.NotFound("agent config not found")
	}
	return fmt.Errorf("querying agent config: %w", err)
}
