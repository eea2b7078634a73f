package llm

import (
	"math"
	"testing"
)

func TestEstimateCostUSD(t *testing.T) {
	usage := &Usage{InputTokens: 1000, OutputTokens: 2000}

	tests := []struct {
		provider string
		model    string
		want     float64
	}{
		{"openai", "gpt-4o", 0.0025 + 2*0.01},
		{"openai", "gpt-4o-mini", 0.00015 + 2*0.0006},
		{"openai", "gpt-4o-2024-08-06", 0.0025 + 2*0.01},
		{"gemini", "gemini-2.0-flash", 0.000075 + 2*0.0003},
		{"anthropic", "claude-sonnet-4-20250514", 0.003 + 2*0.015},
		{"anthropic", "claude-opus-4", 0.015 + 2*0.075},
		{"openai", "some-future-model", 0},
		{"unknown", "gpt-4o", 0},
	}
	for _, tt := range tests {
		got := EstimateCostUSD(tt.provider, tt.model, usage)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EstimateCostUSD(%s, %s) = %v, want %v", tt.provider, tt.model, got, tt.want)
		}
	}
}

func TestEstimateCostUSD_LongestPrefixWins(t *testing.T) {
	usage := &Usage{InputTokens: 1000}
	// gpt-4o-mini must not be billed at the gpt-4o rate.
	mini := EstimateCostUSD("openai", "gpt-4o-mini-2024-07-18", usage)
	if math.Abs(mini-0.00015) > 1e-9 {
		t.Errorf("mini cost = %v, want 0.00015", mini)
	}
}

func TestEstimateCostUSD_NilUsage(t *testing.T) {
	if got := EstimateCostUSD("openai", "gpt-4o", nil); got != 0 {
		t.Errorf("EstimateCostUSD(nil usage) = %v, want 0", got)
	}
}
