package agentconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaterializeWritesDefaultsWhenConfigJSONIsNil(t *testing.T) {
	dataDir := t.TempDir()

	if err := materialize(dataDir, AgentClaudeCode, nil); err != nil {
		t.Fatalf("materialize() error = %v", err)
	}

	path := filepath.Join(agentConfigDir(dataDir, AgentClaudeCode), "settings.json")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading materialized config: %v", err)
	}
	if len(b) == 0 {
		t.Error("materialized settings.json is empty")
	}
}

func TestMaterializeOverlaysStoredConfig(t *testing.T) {
	dataDir := t.TempDir()
	stored := `{"model":"claude-opus-4"}`

	if err := materialize(dataDir, AgentClaudeCode, &stored); err != nil {
		t.Fatalf("materialize() error = %v", err)
	}

	b, err := os.ReadFile(filepath.Join(agentConfigDir(dataDir, AgentClaudeCode), "settings.json"))
	if err != nil {
		t.Fatalf("reading materialized config: %v", err)
	}
	if !strings.Contains(string(b), "claude-opus-4") {
		t.Error("materialized config did not overlay the stored model field")
	}
}

func TestMaterializeEachAgentType(t *testing.T) {
	cases := map[AgentType]string{
		AgentClaudeCode: "settings.json",
		AgentCodexCLI:   "config.yaml",
		AgentGeminiCLI:  "config.json",
		AgentOpenCode:   "config.toml",
	}

	for agentType, filename := range cases {
		dataDir := t.TempDir()
		if err := materialize(dataDir, agentType, nil); err != nil {
			t.Fatalf("materialize(%s) error = %v", agentType, err)
		}
		if _, err := os.Stat(filepath.Join(agentConfigDir(dataDir, agentType), filename)); err != nil {
			t.Errorf("materialize(%s) did not write %s: %v", agentType, filename, err)
		}
	}
}
