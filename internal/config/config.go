// Package config loads agent configuration from a YAML file with
// environment variable overrides. Every knob has a safe default so the
// service starts from an empty config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the agent core.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Agent    AgentConfig    `yaml:"agent"`
	Provider ProviderConfig `yaml:"providers"`
	Breaker  BreakerConfig  `yaml:"circuit_breaker"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Safety   SafetyConfig   `yaml:"safety"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	RedactKeys []string `yaml:"redact_keys"`
}

// AgentConfig bounds the orchestration loop and history builder.
type AgentConfig struct {
	MaxInputTokens      int           `yaml:"max_input_tokens"`
	MaxTotalTokens      int           `yaml:"max_total_tokens"`
	MaxIterations       int           `yaml:"max_iterations"`
	MaxToolCallsPerTurn int           `yaml:"max_tool_calls_per_turn"`
	MaxHistoryMessages  int           `yaml:"max_history_messages"`
	ToolTimeout         time.Duration `yaml:"tool_timeout"`
}

// ProviderConfig selects and tunes LLM backends.
type ProviderConfig struct {
	// Force pins provider selection, overriding credential detection.
	Force string `yaml:"force"`

	OpenAI    BackendConfig `yaml:"openai"`
	Gemini    BackendConfig `yaml:"gemini"`
	Anthropic BackendConfig `yaml:"anthropic"`
}

// BackendConfig tunes one LLM backend.
type BackendConfig struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	RPMLimit   int           `yaml:"rpm_limit"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	// ErrorThresholdPercent opens the circuit when the rolling error ratio
	// exceeds this percentage.
	ErrorThresholdPercent int `yaml:"error_threshold_percent"`

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// MongoConfig configures the document store.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SafetyConfig configures input safety checks.
type SafetyConfig struct {
	ModerationEnabled bool `yaml:"moderation_enabled"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			RedactKeys: []string{"password", "token", "authorization", "cookie", "secret"},
		},
		Agent: AgentConfig{
			MaxInputTokens:      3000,
			MaxTotalTokens:      4000,
			MaxIterations:       10,
			MaxToolCallsPerTurn: 15,
			MaxHistoryMessages:  50,
			ToolTimeout:         5 * time.Second,
		},
		Provider: ProviderConfig{
			OpenAI: BackendConfig{
				Model:      "gpt-4o",
				RPMLimit:   60,
				MaxRetries: 3,
				Timeout:    30 * time.Second,
			},
			Gemini: BackendConfig{
				Model:      "gemini-2.0-flash",
				RPMLimit:   15,
				MaxRetries: 4,
				Timeout:    30 * time.Second,
			},
			Anthropic: BackendConfig{
				Model:      "claude-sonnet-4-20250514",
				RPMLimit:   50,
				MaxRetries: 3,
				Timeout:    30 * time.Second,
			},
		},
		Breaker: BreakerConfig{
			ErrorThresholdPercent: 50,
			ResetTimeout:          30 * time.Second,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "quartermaster",
		},
	}
}

// Load reads the config file at path (if it exists) over the defaults and
// then applies environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env overrides.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envInt("AGENT_MAX_INPUT_TOKENS", &c.Agent.MaxInputTokens)
	envInt("AGENT_MAX_TOTAL_TOKENS", &c.Agent.MaxTotalTokens)
	envInt("AGENT_MAX_ITERATIONS", &c.Agent.MaxIterations)
	envInt("AGENT_MAX_TOOL_CALLS_PER_TURN", &c.Agent.MaxToolCallsPerTurn)
	envInt("AGENT_MAX_HISTORY_MESSAGES", &c.Agent.MaxHistoryMessages)
	envMillis("AGENT_TOOL_TIMEOUT_MS", &c.Agent.ToolTimeout)

	envString("AI_PROVIDER", &c.Provider.Force)

	applyBackendEnv("OPENAI", &c.Provider.OpenAI)
	applyBackendEnv("GEMINI", &c.Provider.Gemini)
	applyBackendEnv("ANTHROPIC", &c.Provider.Anthropic)

	envInt("CIRCUIT_BREAKER_ERROR_THRESHOLD", &c.Breaker.ErrorThresholdPercent)
	envMillis("CIRCUIT_BREAKER_RESET_TIMEOUT_MS", &c.Breaker.ResetTimeout)

	envString("MONGO_URI", &c.Mongo.URI)
	envString("MONGO_DATABASE", &c.Mongo.Database)

	envBool("MODERATION_ENABLED", &c.Safety.ModerationEnabled)

	if v := os.Getenv("LOG_REDACT_KEYS"); v != "" {
		keys := strings.Split(v, ",")
		for i := range keys {
			keys[i] = strings.TrimSpace(keys[i])
		}
		c.Log.RedactKeys = keys
	}
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)
	envString("SERVER_ADDR", &c.Server.Addr)
}

func applyBackendEnv(prefix string, b *BackendConfig) {
	envString(prefix+"_API_KEY", &b.APIKey)
	envString(prefix+"_MODEL", &b.Model)
	envInt(prefix+"_RPM_LIMIT", &b.RPMLimit)
	envInt(prefix+"_MAX_RETRIES", &b.MaxRetries)
	envMillis(prefix+"_TIMEOUT_MS", &b.Timeout)
}

func (c *Config) validate() error {
	if c.Agent.MaxInputTokens < 512 {
		return fmt.Errorf("agent.max_input_tokens must be >= 512, got %d", c.Agent.MaxInputTokens)
	}
	if c.Agent.MaxTotalTokens < c.Agent.MaxInputTokens {
		return fmt.Errorf("agent.max_total_tokens (%d) must be >= max_input_tokens (%d)",
			c.Agent.MaxTotalTokens, c.Agent.MaxInputTokens)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Agent.MaxToolCallsPerTurn <= 0 {
		return fmt.Errorf("agent.max_tool_calls_per_turn must be positive")
	}
	if c.Breaker.ErrorThresholdPercent <= 0 || c.Breaker.ErrorThresholdPercent > 100 {
		return fmt.Errorf("circuit_breaker.error_threshold_percent must be in (0,100], got %d",
			c.Breaker.ErrorThresholdPercent)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envMillis(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
