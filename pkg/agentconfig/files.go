package agentconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/vibeforge/controlplane/internal/apperr"
)

// agentConfigDir is the subdirectory, relative to an instance's data dir,
// each agent's on-disk config lives under.
func agentConfigDir(dataDir string, agentType AgentType) string {
	return filepath.Join(dataDir, "ai-agents", string(agentType))
}

// materialize writes the on-disk config file for one agent, in the format
// that agent expects: JSON for claude-code/gemini-cli, YAML for codex-cli,
// TOML for opencode. configJSON is the raw stored config (nil uses agent
// defaults); absent fields fall back to the agent's defaults field-by-field.
func materialize(dataDir string, agentType AgentType, configJSON *string) error {
	dir := agentConfigDir(dataDir, agentType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating agent config directory: %w", err)
	}

	switch agentType {
	case AgentClaudeCode:
		cfg := defaultClaudeCodeConfig()
		mergeJSON(configJSON, &cfg)
		return writeJSON(filepath.Join(dir, "settings.json"), cfg)

	case AgentCodexCLI:
		cfg := defaultCodexCliConfig()
		mergeJSON(configJSON, &cfg)
		return writeYAML(filepath.Join(dir, "config.yaml"), cfg)

	case AgentGeminiCLI:
		cfg := defaultGeminiCliConfig()
		mergeJSON(configJSON, &cfg)
		return writeJSON(filepath.Join(dir, "config.json"), cfg)

	case AgentOpenCode:
		cfg := defaultOpenCodeConfig()
		mergeJSON(configJSON, &cfg)
		return writeTOML(filepath.Join(dir, "config.toml"), cfg)

	default:
		return apperr.BadRequest("unknown agent type: " + string(agentType))
	}
}

// mergeJSON overlays the stored config_json onto the default struct. A
// malformed or absent stored value leaves defaults in place, matching the
// original's unwrap_or-on-parse-failure behavior.
func mergeJSON(configJSON *string, dst any) {
	if configJSON == nil {
		return
	}
	_ = json.Unmarshal([]byte(*configJSON), dst)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling agent config: %w", err)
	}
	return writeFile(path, b)
}

func writeYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling agent config: %w", err)
	}
	return writeFile(path, b)
}

func writeTOML(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling agent config: %w", err)
	}
	return writeFile(path, b)
}

func writeFile(path string, b []byte) error {
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
