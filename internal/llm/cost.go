package llm

import "strings"

// rate is USD per 1K tokens.
type rate struct {
	input  float64
	output float64
}

// costTable holds static per-model rates keyed by "provider/model-prefix".
// Longest prefix wins within a provider; unknown models cost zero rather
// than guessing.
var costTable = map[string]rate{
	"openai/gpt-4o":           {input: 0.0025, output: 0.01},
	"openai/gpt-4o-mini":      {input: 0.00015, output: 0.0006},
	"openai/gpt-4-turbo":      {input: 0.01, output: 0.03},
	"openai/gpt-3.5-turbo":    {input: 0.0005, output: 0.0015},
	"gemini/gemini-2.0-flash": {input: 0.000075, output: 0.0003},
	"gemini/gemini-1.5-pro":   {input: 0.00125, output: 0.005},
	"anthropic/claude-sonnet": {input: 0.003, output: 0.015},
	"anthropic/claude-haiku":  {input: 0.0008, output: 0.004},
	"anthropic/claude-opus":   {input: 0.015, output: 0.075},
}

// EstimateCostUSD computes the dollar cost of an invocation from the
// static rate table.
func EstimateCostUSD(provider, model string, usage *Usage) float64 {
	if usage == nil {
		return 0
	}
	key := provider + "/" + strings.ToLower(model)
	var best rate
	bestLen := 0
	for prefix, r := range costTable {
		if strings.HasPrefix(key, prefix) && len(prefix) > bestLen {
			best = r
			bestLen = len(prefix)
		}
	}
	if bestLen == 0 {
		return 0
	}
	return float64(usage.InputTokens)/1000*best.input +
		float64(usage.OutputTokens)/1000*best.output
}
