package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quartermasterhq/quartermaster/internal/observability"
)

func newTestLimiter(rpm, maxWaiters int) *Limiter {
	return NewLimiter("test", rpm, maxWaiters, observability.NewMetrics(prometheus.NewRegistry()))
}

func TestLimiter_AllowsWithinRate(t *testing.T) {
	l := newTestLimiter(600, 0)

	for i := 0; i < 5; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() #%d = %v", i, err)
		}
	}
}

func TestLimiter_QueueFull(t *testing.T) {
	// One request per minute with a single-slot queue. The first call takes
	// the burst token, the second occupies the queue, the third is rejected.
	l := newTestLimiter(1, 1)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waiting := make(chan error, 1)
	go func() { waiting <- l.Acquire(ctx) }()

	deadline := time.After(time.Second)
	for l.QueueDepth() != 1 {
		select {
		case <-deadline:
			t.Fatal("waiter never queued")
		case <-time.After(time.Millisecond):
		}
	}

	if err := l.Acquire(context.Background()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Acquire() = %v, want ErrQueueFull", err)
	}

	cancel()
	if err := <-waiting; err == nil {
		t.Error("queued Acquire() = nil after cancel, want error")
	}
	if got := l.QueueDepth(); got != 0 {
		t.Errorf("QueueDepth() = %d, want 0", got)
	}
}

func TestLimiter_CancelledContext(t *testing.T) {
	l := newTestLimiter(1, 0)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Error("Acquire() with cancelled context = nil, want error")
	}
}
