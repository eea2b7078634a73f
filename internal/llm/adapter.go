package llm

import (
	"context"
	"time"

	"github.com/quartermasterhq/quartermaster/internal/observability"
	"github.com/quartermasterhq/quartermaster/internal/tokens"
)

// UsageRecord captures one invocation's consumption for persistence.
type UsageRecord struct {
	UserID           string
	ConversationID   string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
	Estimated        bool
	ToolCalls        int
}

// UsageRecorder persists usage records. Implementations must not block the
// caller; recording failures are observability losses, never request
// failures.
type UsageRecorder interface {
	Record(ctx context.Context, rec UsageRecord)
}

// Adapter wraps a Provider with metrics, cost accounting, and usage
// persistence. The orchestrator talks to the Adapter, never to a raw
// backend.
type Adapter struct {
	inner    Provider
	metrics  *observability.Metrics
	logger   *observability.Logger
	recorder UsageRecorder
	counter  *tokens.Counter
}

// NewAdapter wraps provider. recorder may be nil.
func NewAdapter(provider Provider, metrics *observability.Metrics, logger *observability.Logger, recorder UsageRecorder) *Adapter {
	return &Adapter{
		inner:    provider,
		metrics:  metrics,
		logger:   logger,
		recorder: recorder,
		counter:  tokens.ForModel(provider.Info().Model),
	}
}

// Name returns the wrapped provider's name.
func (a *Adapter) Name() string { return a.inner.Name() }

// Info returns the wrapped provider's info.
func (a *Adapter) Info() ProviderInfo { return a.inner.Info() }

// InvokeChat invokes the backend and records metrics, spend, and usage.
// Backends that omit usage get a local estimate marked Estimated.
func (a *Adapter) InvokeChat(ctx context.Context, req *ChatRequest) (*AIResponse, error) {
	provider := a.inner.Name()
	model := a.inner.Info().Model

	start := time.Now()
	resp, err := a.inner.InvokeChat(ctx, req)
	elapsed := time.Since(start)

	a.metrics.LLMCallDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
	if err != nil {
		a.metrics.LLMCalls.WithLabelValues(provider, model, "error").Inc()
		a.logger.Error(ctx, "llm call failed",
			"provider", provider,
			"model", model,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}
	a.metrics.LLMCalls.WithLabelValues(provider, model, "success").Inc()

	if resp.Model != "" {
		model = resp.Model
	}
	if resp.Usage == nil {
		resp.Usage = a.estimateUsage(req, resp)
	}

	usage := resp.Usage
	a.metrics.LLMTokens.WithLabelValues(provider, model, "input").Add(float64(usage.InputTokens))
	a.metrics.LLMTokens.WithLabelValues(provider, model, "output").Add(float64(usage.OutputTokens))

	cost := EstimateCostUSD(provider, model, usage)
	if cost > 0 {
		a.metrics.LLMCostUSD.WithLabelValues(provider, model).Add(cost)
	}

	a.logger.Debug(ctx, "llm call completed",
		"provider", provider,
		"model", model,
		"duration_ms", elapsed.Milliseconds(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"estimated", usage.Estimated,
		"tool_calls", len(resp.ToolCalls),
	)

	if a.recorder != nil {
		a.recorder.Record(ctx, UsageRecord{
			UserID:           observability.UserID(ctx),
			ConversationID:   observability.ConversationID(ctx),
			Provider:         provider,
			Model:            model,
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.TotalTokens,
			CostUSD:          cost,
			Estimated:        usage.Estimated,
			ToolCalls:        len(resp.ToolCalls),
		})
	}
	return resp, nil
}

// estimateUsage approximates token counts when the backend omits them.
func (a *Adapter) estimateUsage(req *ChatRequest, resp *AIResponse) *Usage {
	in := 0
	for _, m := range req.Messages {
		in += a.counter.CountMessage(m.Role, m.Content)
		for _, tc := range m.ToolCalls {
			in += a.counter.Count(tc.Name) + a.counter.Count(string(tc.Arguments))
		}
	}
	for _, t := range req.Tools {
		in += a.counter.Count(t.Name) + a.counter.Count(t.Description) + a.counter.Count(string(t.Parameters))
	}

	out := a.counter.Count(resp.Content)
	for _, tc := range resp.ToolCalls {
		out += a.counter.Count(tc.Name) + a.counter.Count(string(tc.Arguments))
	}

	return &Usage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		Estimated:    true,
	}
}
