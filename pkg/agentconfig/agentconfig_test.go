package agentconfig

import "testing"

func TestParseAgentType(t *testing.T) {
	for _, valid := range []string{"claude-code", "codex-cli", "gemini-cli", "opencode"} {
		if _, err := ParseAgentType(valid); err != nil {
			t.Errorf("ParseAgentType(%q) returned error: %v", valid, err)
		}
	}

	if _, err := ParseAgentType("not-a-real-agent"); err == nil {
		t.Error("ParseAgentType() should reject an unknown agent type")
	}
}

func TestToInfoHidesCiphertext(t *testing.T) {
	cipher := "base64(nonce||ciphertext||tag)"
	c := Config{
		AgentType:    AgentClaudeCode,
		IsEnabled:    true,
		APIKeyCipher: &cipher,
	}

	info := c.ToInfo()

	if !info.HasAPIKey {
		t.Error("HasAPIKey should be true when APIKeyCipher is set")
	}
	if info.Config != nil {
		t.Error("Config should be nil when ConfigJSON is unset")
	}
}

func TestToInfoWithoutAPIKey(t *testing.T) {
	c := Config{AgentType: AgentOpenCode, IsEnabled: false}

	info := c.ToInfo()

	if info.HasAPIKey {
		t.Error("HasAPIKey should be false when APIKeyCipher is unset")
	}
}
