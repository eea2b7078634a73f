package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/quartermasterhq/quartermaster/internal/config"
)

// Select picks and constructs the active backend.
//
// Precedence: an explicit force value (config providers.force or the
// AI_PROVIDER env var) wins; otherwise the first backend with credentials is
// chosen in the order openai, gemini, anthropic. No credentials at all is a
// startup error, not a fallback.
func Select(ctx context.Context, cfg *config.ProviderConfig) (Provider, error) {
	name, err := DefaultName(cfg)
	if err != nil {
		return nil, err
	}
	return newBackend(ctx, cfg, name)
}

// DefaultName resolves the selection precedence to a canonical backend name
// without constructing anything.
func DefaultName(cfg *config.ProviderConfig) (string, error) {
	if strings.TrimSpace(cfg.Force) != "" {
		name := CanonicalName(cfg.Force)
		if name == "" {
			return "", fmt.Errorf("unknown provider %q", cfg.Force)
		}
		return name, nil
	}

	switch {
	case cfg.OpenAI.APIKey != "":
		return "openai", nil
	case cfg.Gemini.APIKey != "":
		return "gemini", nil
	case cfg.Anthropic.APIKey != "":
		return "anthropic", nil
	}
	return "", &ErrNoProviderConfigured{
		Required: []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "ANTHROPIC_API_KEY"},
	}
}

// SelectAll constructs every backend with credentials, keyed by canonical
// name. Used for per-request provider overrides.
func SelectAll(ctx context.Context, cfg *config.ProviderConfig) (map[string]Provider, error) {
	out := make(map[string]Provider, 3)
	for _, name := range []string{"openai", "gemini", "anthropic"} {
		if BackendFor(cfg, name).APIKey == "" {
			continue
		}
		p, err := newBackend(ctx, cfg, name)
		if err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}

// CanonicalName maps a user-supplied provider name, including common
// aliases, onto its canonical backend name. Unknown names map to "".
func CanonicalName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return "openai"
	case "gemini", "google":
		return "gemini"
	case "anthropic", "claude":
		return "anthropic"
	}
	return ""
}

func newBackend(ctx context.Context, cfg *config.ProviderConfig, name string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "gemini":
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// BackendFor returns the tuning block for a named provider.
func BackendFor(cfg *config.ProviderConfig, name string) config.BackendConfig {
	switch name {
	case "openai":
		return cfg.OpenAI
	case "gemini":
		return cfg.Gemini
	case "anthropic":
		return cfg.Anthropic
	}
	return config.BackendConfig{}
}
