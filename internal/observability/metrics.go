package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the agent core emits.
//
// Collectors are registered against the Registerer passed to NewMetrics so
// tests can use isolated registries. Metric names are part of the public
// surface exposed at /metrics and must stay stable:
//
//   - agent_requests_total{status}
//   - agent_request_duration_seconds
//   - agent_iterations_total
//   - llm_calls_total{provider,model,status}
//   - llm_call_duration_seconds{provider,model}
//   - llm_tokens_total{provider,model,type}
//   - llm_cost_usd_total{provider,model}
//   - tool_executions_total{tool,status}
//   - tool_execution_duration_seconds{tool}
//   - conversation_truncations_total{reason}
//   - validation_errors_total{reason}
//   - moderation_rejections_total{category}
//   - rate_limiter_queue_depth{provider}
//   - circuit_breaker_state{provider}
type Metrics struct {
	// AgentRequests counts orchestrated turns. Labels: status (success|error).
	AgentRequests *prometheus.CounterVec

	// AgentRequestDuration measures whole-turn latency in seconds.
	AgentRequestDuration prometheus.Histogram

	// AgentIterations counts model-call iterations across all turns.
	AgentIterations prometheus.Counter

	// LLMCalls counts model invocations.
	// Labels: provider, model, status (success|error|retry).
	LLMCalls *prometheus.CounterVec

	// LLMCallDuration measures model invocation latency in seconds.
	// Labels: provider, model.
	LLMCallDuration *prometheus.HistogramVec

	// LLMTokens counts token consumption. Labels: provider, model,
	// type (input|output).
	LLMTokens *prometheus.CounterVec

	// LLMCostUSD accumulates estimated spend. Labels: provider, model.
	LLMCostUSD *prometheus.CounterVec

	// ToolExecutions counts tool runs. Labels: tool, status (success|error|timeout).
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool latency in seconds. Labels: tool.
	ToolExecutionDuration *prometheus.HistogramVec

	// ConversationTruncations counts history truncation events.
	// Labels: reason (message_count|token_budget|total_tokens).
	ConversationTruncations *prometheus.CounterVec

	// ValidationErrors counts rejected inputs.
	// Labels: reason (schema|prompt_injection|tool_args).
	ValidationErrors *prometheus.CounterVec

	// ModerationRejections counts messages blocked by content moderation.
	// Labels: category.
	ModerationRejections *prometheus.CounterVec

	// RateLimiterQueueDepth gauges callers waiting for limiter admission.
	// Labels: provider.
	RateLimiterQueueDepth *prometheus.GaugeVec

	// CircuitBreakerState gauges breaker state per provider:
	// 0 closed, 0.5 half-open, 1 open.
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors against reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promautoWith(reg)

	return &Metrics{
		AgentRequests: factory.counterVec(prometheus.CounterOpts{
			Name: "agent_requests_total",
			Help: "Total orchestrated agent turns by status",
		}, []string{"status"}),

		AgentRequestDuration: factory.histogram(prometheus.HistogramOpts{
			Name:    "agent_request_duration_seconds",
			Help:    "Duration of whole agent turns in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		AgentIterations: factory.counter(prometheus.CounterOpts{
			Name: "agent_iterations_total",
			Help: "Total model-call iterations across all turns",
		}),

		LLMCalls: factory.counterVec(prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Total LLM invocations by provider, model, and status",
		}, []string{"provider", "model", "status"}),

		LLMCallDuration: factory.histogramVec(prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Duration of LLM invocations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMTokens: factory.counterVec(prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total tokens consumed by provider, model, and type",
		}, []string{"provider", "model", "type"}),

		LLMCostUSD: factory.counterVec(prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Estimated LLM spend in USD by provider and model",
		}, []string{"provider", "model"}),

		ToolExecutions: factory.counterVec(prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Total tool executions by tool and status",
		}, []string{"tool", "status"}),

		ToolExecutionDuration: factory.histogramVec(prometheus.HistogramOpts{
			Name:    "tool_execution_duration_seconds",
			Help:    "Duration of tool executions in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"tool"}),

		ConversationTruncations: factory.counterVec(prometheus.CounterOpts{
			Name: "conversation_truncations_total",
			Help: "History truncation events by reason",
		}, []string{"reason"}),

		ValidationErrors: factory.counterVec(prometheus.CounterOpts{
			Name: "validation_errors_total",
			Help: "Rejected inputs by reason",
		}, []string{"reason"}),

		ModerationRejections: factory.counterVec(prometheus.CounterOpts{
			Name: "moderation_rejections_total",
			Help: "Messages blocked by content moderation, by category",
		}, []string{"category"}),

		RateLimiterQueueDepth: factory.gaugeVec(prometheus.GaugeOpts{
			Name: "rate_limiter_queue_depth",
			Help: "Callers queued for rate limiter admission per provider",
		}, []string{"provider"}),

		CircuitBreakerState: factory.gaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per provider: 0 closed, 0.5 half-open, 1 open",
		}, []string{"provider"}),
	}
}

// factory mirrors promauto but against an explicit Registerer.
type factory struct {
	reg prometheus.Registerer
}

func promautoWith(reg prometheus.Registerer) factory {
	return factory{reg: reg}
}

func (f factory) counter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.reg.MustRegister(c)
	return c
}

func (f factory) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	f.reg.MustRegister(c)
	return c
}

func (f factory) histogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	f.reg.MustRegister(h)
	return h
}

func (f factory) histogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	f.reg.MustRegister(h)
	return h
}

func (f factory) gaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labels)
	f.reg.MustRegister(g)
	return g
}
