// Package agentconfig manages per-instance AI-agent credentials and
// materializes their on-disk config files. Grounded on original_source's
// services/agent_config_manager.rs and db/models/instance_ai_agent.rs.
package agentconfig

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vibeforge/controlplane/internal/apperr"
)

// AgentType is one of the four supported AI coding agents.
type AgentType string

const (
	AgentClaudeCode AgentType = "claude-code"
	AgentCodexCLI   AgentType = "codex-cli"
	AgentGeminiCLI  AgentType = "gemini-cli"
	AgentOpenCode   AgentType = "opencode"
)

// validAgentTypes is used to reject unknown agent_type path segments before
// anything touches the database.
var validAgentTypes = map[AgentType]bool{
	AgentClaudeCode: true,
	AgentCodexCLI:   true,
	AgentGeminiCLI:  true,
	AgentOpenCode:   true,
}

// ParseAgentType validates a path-segment agent type string.
func ParseAgentType(s string) (AgentType, error) {
	t := AgentType(s)
	if !validAgentTypes[t] {
		return "", apperr.BadRequest("unknown agent type: " + s)
	}
	return t, nil
}

// Config is a single instance's configuration for one AI agent.
type Config struct {
	ID              uuid.UUID
	InstanceID   uuid.UUID
	AgentType    AgentType
	IsEnabled    bool
	APIKeyCipher *string // base64(nonce||ciphertext||tag); never returned over the wire
	ConfigJSON   *string
	RateLimitRPM *int32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Info is the wire DTO: the ciphertext is collapsed to a boolean.
type Info struct {
	AgentType    AgentType       `json:"agent_type"`
	IsEnabled    bool            `json:"is_enabled"`
	HasAPIKey    bool            `json:"has_api_key"`
	Config       json.RawMessage `json:"config,omitempty"`
	RateLimitRPM *int32          `json:"rate_limit_rpm,omitempty"`
}

// ToInfo projects a Config to its wire DTO.
func (c Config) ToInfo() Info {
	var raw json.RawMessage
	if c.ConfigJSON != nil {
		raw = json.RawMessage(*c.ConfigJSON)
	}
	return Info{
		AgentType:    c.AgentType,
		IsEnabled:    c.IsEnabled,
		HasAPIKey:    c.APIKeyCipher != nil,
		Config:       raw,
		RateLimitRPM: c.RateLimitRPM,
	}
}

// SetConfigRequest is the payload for PUT /instances/{id}/agents/{agent_type}.
type SetConfigRequest struct {
	IsEnabled    bool            `json:"is_enabled"`
	APIKey       *string         `json:"api_key,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	RateLimitRPM *int32          `json:"rate_limit_rpm,omitempty" validate:"omitempty,min=1"`
}

// ClaudeCodeConfig is the claude-code agent's config schema.
type ClaudeCodeConfig struct {
	Model              *string `json:"model,omitempty"`
	MaxTokens          *int    `json:"max_tokens,omitempty"`
	CustomInstructions *string `json:"custom_instructions,omitempty"`
}

func defaultClaudeCodeConfig() ClaudeCodeConfig {
	model := "claude-sonnet-4-20250514"
	maxTokens := 8192
	return ClaudeCodeConfig{Model: &model, MaxTokens: &maxTokens}
}

// CodexCliConfig is the codex-cli agent's config schema.
type CodexCliConfig struct {
	Model       *string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

func defaultCodexCliConfig() CodexCliConfig {
	model := "gpt-4"
	temp := float32(0.7)
	return CodexCliConfig{Model: &model, Temperature: &temp}
}

// GeminiCliConfig is the gemini-cli agent's config schema.
type GeminiCliConfig struct {
	Model          *string         `json:"model,omitempty"`
	SafetySettings json.RawMessage `json:"safety_settings,omitempty"`
}

func defaultGeminiCliConfig() GeminiCliConfig {
	model := "gemini-pro"
	return GeminiCliConfig{Model: &model}
}

// OpenCodeConfig is the opencode agent's config schema.
type OpenCodeConfig struct {
	Provider *string `toml:"provider,omitempty"`
	Model    *string `toml:"model,omitempty"`
}

func defaultOpenCodeConfig() OpenCodeConfig {
	provider := "openai"
	model := "gpt-4"
	return OpenCodeConfig{Provider: &provider, Model: &model}
}
