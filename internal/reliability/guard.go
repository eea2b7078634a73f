package reliability

import (
	"context"
	"errors"
	"time"

	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
)

// Guard wraps a provider with the full reliability stack. Layer order,
// outermost first: rate limiter, retry, circuit breaker, per-attempt
// timeout. Each retry attempt is gated by the breaker individually so an
// opening circuit cuts a retry sequence short.
type Guard struct {
	inner   llm.Provider
	limiter *Limiter
	breaker *Breaker
	retry   RetryConfig
	timeout time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// GuardConfig assembles a Guard around a provider.
type GuardConfig struct {
	Limiter *Limiter
	Breaker *Breaker
	Retry   RetryConfig

	// Timeout bounds each individual attempt, not the whole sequence.
	Timeout time.Duration

	// Metrics counts retried attempts. May be nil.
	Metrics *observability.Metrics
}

// NewGuard wraps provider. Nil Limiter or Breaker disables that layer.
func NewGuard(provider llm.Provider, cfg GuardConfig, logger *observability.Logger) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Guard{
		inner:   provider,
		limiter: cfg.Limiter,
		breaker: cfg.Breaker,
		retry:   cfg.Retry,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Name returns the wrapped provider's name.
func (g *Guard) Name() string { return g.inner.Name() }

// Info returns the wrapped provider's info.
func (g *Guard) Info() llm.ProviderInfo { return g.inner.Info() }

// Breaker exposes the circuit breaker for health reporting and operational
// overrides.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// InvokeChat runs one invocation through the reliability stack.
func (g *Guard) InvokeChat(ctx context.Context, req *llm.ChatRequest) (*llm.AIResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	var resp *llm.AIResponse
	attempt := 0
	err := Retry(ctx, g.retry, g.shouldRetry, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if g.metrics != nil {
				g.metrics.LLMCalls.WithLabelValues(g.inner.Name(), g.inner.Info().Model, "retry").Inc()
			}
			g.logger.Warn(ctx, "retrying llm call",
				"provider", g.inner.Name(),
				"attempt", attempt,
			)
		}
		return g.attempt(ctx, req, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *Guard) attempt(ctx context.Context, req *llm.ChatRequest, out **llm.AIResponse) error {
	call := func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.inner.InvokeChat(attemptCtx, req)
		if err != nil {
			return err
		}
		*out = resp
		return nil
	}

	if g.breaker == nil {
		return call(ctx)
	}
	return g.breaker.Execute(ctx, call)
}

// shouldRetry allows another attempt only for transient provider faults.
// An open circuit fails fast; waiting out the breaker inside a retry loop
// would just burn the caller's deadline.
func (g *Guard) shouldRetry(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrQueueFull) {
		return false
	}
	return llm.IsRetryable(err)
}
