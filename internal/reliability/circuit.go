package reliability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quartermasterhq/quartermaster/internal/observability"
)

// Breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	// minSamples is the number of rolling-window outcomes required before
	// the error ratio can open the circuit. Below this the breaker stays
	// closed regardless of ratio.
	minSamples = 10

	// defaultWindow bounds how far back outcomes count toward the ratio.
	defaultWindow = 60 * time.Second
)

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Provider names the protected backend; used for the state gauge.
	Provider string

	// ErrorThresholdPercent opens the circuit when the rolling error ratio
	// reaches this percentage. Default 50.
	ErrorThresholdPercent int

	// ResetTimeout is how long the circuit stays open before a half-open
	// probe. Default 30s.
	ResetTimeout time.Duration

	// Window is the rolling sample window. Default 60s.
	Window time.Duration
}

type outcome struct {
	at     time.Time
	failed bool
}

// Breaker trips when the rolling error ratio crosses the configured
// threshold, rejects calls while open, and admits a single probe after the
// reset timeout.
type Breaker struct {
	cfg     BreakerConfig
	metrics *observability.Metrics

	mu          sync.Mutex
	state       string
	outcomes    []outcome
	openedAt    time.Time
	probeActive bool
	forced      bool

	// now is swappable for tests.
	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig, metrics *observability.Metrics) *Breaker {
	if cfg.ErrorThresholdPercent <= 0 || cfg.ErrorThresholdPercent > 100 {
		cfg.ErrorThresholdPercent = 50
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	b := &Breaker{
		cfg:     cfg,
		metrics: metrics,
		state:   StateClosed,
		now:     time.Now,
	}
	b.publishState()
	return b
}

// Execute runs op under breaker protection. Rejected calls return
// ErrCircuitOpen without invoking op. Context cancellation does not count
// as a backend failure.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op(ctx)
	if errors.Is(err, context.Canceled) {
		b.release()
		return err
	}
	b.record(err)
	return err
}

// State reports the current breaker state, applying the open-to-half-open
// transition if the reset timeout has elapsed.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// ForceOpen trips the breaker until ForceClose. Used by operational
// tooling; the reset timeout does not apply.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = true
	b.transition(StateOpen)
}

// ForceClose closes the breaker and clears the rolling window.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = false
	b.outcomes = b.outcomes[:0]
	b.probeActive = false
	b.transition(StateClosed)
}

// BreakerStats is a point-in-time snapshot of the rolling window.
type BreakerStats struct {
	State      string  `json:"state"`
	Samples    int     `json:"samples"`
	Failures   int     `json:"failures"`
	ErrorRatio float64 `json:"errorRatio"`
	Forced     bool    `json:"forced"`
}

// Stats reports the breaker's current state and window tallies.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	b.prune()
	total, failed := b.tally()
	stats := BreakerStats{State: b.state, Samples: total, Failures: failed, Forced: b.forced}
	if total > 0 {
		stats.ErrorRatio = float64(failed) / float64(total)
	}
	return stats
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		// One probe at a time.
		if b.probeActive {
			return ErrCircuitOpen
		}
		b.probeActive = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

// release undoes an admission whose outcome should not count, such as a
// caller-cancelled probe.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probeActive = false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.forced {
		return
	}

	if b.state == StateHalfOpen {
		b.probeActive = false
		if err != nil {
			b.openedAt = b.now()
			b.transition(StateOpen)
			return
		}
		b.outcomes = b.outcomes[:0]
		b.transition(StateClosed)
		return
	}

	b.outcomes = append(b.outcomes, outcome{at: b.now(), failed: err != nil})
	b.prune()

	if err == nil {
		return
	}
	total, failed := b.tally()
	if total >= minSamples && failed*100 >= total*b.cfg.ErrorThresholdPercent {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// maybeHalfOpen moves an expired open circuit to half-open. Caller holds mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && !b.forced && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.probeActive = false
		b.transition(StateHalfOpen)
	}
}

func (b *Breaker) prune() {
	cutoff := b.now().Add(-b.cfg.Window)
	kept := b.outcomes[:0]
	for _, o := range b.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	b.outcomes = kept
}

func (b *Breaker) tally() (total, failed int) {
	for _, o := range b.outcomes {
		total++
		if o.failed {
			failed++
		}
	}
	return total, failed
}

// transition sets the state and publishes the gauge. Caller holds mu.
func (b *Breaker) transition(state string) {
	b.state = state
	b.publishState()
}

func (b *Breaker) publishState() {
	if b.metrics == nil {
		return
	}
	var v float64
	switch b.state {
	case StateOpen:
		v = 1
	case StateHalfOpen:
		v = 0.5
	}
	b.metrics.CircuitBreakerState.WithLabelValues(b.cfg.Provider).Set(v)
}
