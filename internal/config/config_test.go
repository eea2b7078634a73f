package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Agent.MaxInputTokens != 3000 {
		t.Errorf("MaxInputTokens = %d, want 3000", cfg.Agent.MaxInputTokens)
	}
	if cfg.Agent.MaxTotalTokens != 4000 {
		t.Errorf("MaxTotalTokens = %d, want 4000", cfg.Agent.MaxTotalTokens)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.MaxToolCallsPerTurn != 15 {
		t.Errorf("MaxToolCallsPerTurn = %d, want 15", cfg.Agent.MaxToolCallsPerTurn)
	}
	if cfg.Agent.MaxHistoryMessages != 50 {
		t.Errorf("MaxHistoryMessages = %d, want 50", cfg.Agent.MaxHistoryMessages)
	}
	if cfg.Agent.ToolTimeout != 5*time.Second {
		t.Errorf("ToolTimeout = %s, want 5s", cfg.Agent.ToolTimeout)
	}
	if cfg.Breaker.ErrorThresholdPercent != 50 {
		t.Errorf("ErrorThresholdPercent = %d, want 50", cfg.Breaker.ErrorThresholdPercent)
	}
	if cfg.Breaker.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %s, want 30s", cfg.Breaker.ResetTimeout)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.Agent.MaxIterations)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  addr: ":9090"
agent:
  max_iterations: 5
  tool_timeout: 2s
providers:
  force: gemini
  gemini:
    model: gemini-1.5-pro
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.ToolTimeout != 2*time.Second {
		t.Errorf("ToolTimeout = %s, want 2s", cfg.Agent.ToolTimeout)
	}
	if cfg.Provider.Force != "gemini" {
		t.Errorf("Provider.Force = %q, want gemini", cfg.Provider.Force)
	}
	if cfg.Provider.Gemini.Model != "gemini-1.5-pro" {
		t.Errorf("Gemini.Model = %q", cfg.Provider.Gemini.Model)
	}
	// Untouched sections keep their defaults.
	if cfg.Agent.MaxToolCallsPerTurn != 15 {
		t.Errorf("MaxToolCallsPerTurn = %d, want 15", cfg.Agent.MaxToolCallsPerTurn)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AGENT_MAX_ITERATIONS", "7")
	t.Setenv("AGENT_TOOL_TIMEOUT_MS", "2500")
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("MODERATION_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.MaxIterations != 7 {
		t.Errorf("MaxIterations = %d, want 7", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.ToolTimeout != 2500*time.Millisecond {
		t.Errorf("ToolTimeout = %s, want 2.5s", cfg.Agent.ToolTimeout)
	}
	if cfg.Provider.Force != "anthropic" {
		t.Errorf("Provider.Force = %q, want anthropic", cfg.Provider.Force)
	}
	if cfg.Provider.Anthropic.APIKey != "test-key" {
		t.Errorf("Anthropic.APIKey = %q", cfg.Provider.Anthropic.APIKey)
	}
	if !cfg.Safety.ModerationEnabled {
		t.Error("ModerationEnabled = false, want true")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"input tokens floor", map[string]string{"AGENT_MAX_INPUT_TOKENS": "100"}, "max_input_tokens"},
		{"total below input", map[string]string{"AGENT_MAX_TOTAL_TOKENS": "2000"}, "max_total_tokens"},
		{"zero iterations", map[string]string{"AGENT_MAX_ITERATIONS": "-1"}, "max_iterations"},
		{"threshold out of range", map[string]string{"CIRCUIT_BREAKER_ERROR_THRESHOLD": "150"}, "error_threshold_percent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			if err == nil {
				t.Fatal("Load() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() = nil, want parse error")
	}
}
