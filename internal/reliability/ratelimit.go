package reliability

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quartermasterhq/quartermaster/internal/observability"
)

// ErrQueueFull is returned when the limiter already has its maximum number
// of callers waiting for admission.
var ErrQueueFull = errors.New("rate limiter queue is full")

// defaultMaxWaiters bounds the admission queue so a burst degrades into
// fast rejections instead of unbounded goroutine pileup.
const defaultMaxWaiters = 32

// Limiter admits calls for one provider at a configured requests-per-minute
// rate with a bounded wait queue.
type Limiter struct {
	provider string
	lim      *rate.Limiter

	mu         sync.Mutex
	waiting    int
	maxWaiters int

	metrics *observability.Metrics
}

// NewLimiter creates a limiter for provider at rpm requests per minute.
// maxWaiters <= 0 uses the default queue bound.
func NewLimiter(provider string, rpm, maxWaiters int, metrics *observability.Metrics) *Limiter {
	if rpm <= 0 {
		rpm = 60
	}
	if maxWaiters <= 0 {
		maxWaiters = defaultMaxWaiters
	}
	burst := rpm / 4
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		provider:   provider,
		lim:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst),
		maxWaiters: maxWaiters,
		metrics:    metrics,
	}
}

// Acquire blocks until a token is available, the context ends, or the wait
// queue is full.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.lim.Allow() {
		return nil
	}

	l.mu.Lock()
	if l.waiting >= l.maxWaiters {
		l.mu.Unlock()
		return ErrQueueFull
	}
	l.waiting++
	depth := l.waiting
	l.mu.Unlock()
	l.setQueueDepth(depth)

	err := l.lim.Wait(ctx)

	l.mu.Lock()
	l.waiting--
	depth = l.waiting
	l.mu.Unlock()
	l.setQueueDepth(depth)

	return err
}

// QueueDepth reports the number of callers currently waiting.
func (l *Limiter) QueueDepth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiting
}

func (l *Limiter) setQueueDepth(depth int) {
	if l.metrics != nil {
		l.metrics.RateLimiterQueueDepth.WithLabelValues(l.provider).Set(float64(depth))
	}
}
