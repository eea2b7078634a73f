package usage

import (
	"context"
	"time"

	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
)

const recordTimeout = 5 * time.Second

// Recorder implements llm.UsageRecorder by writing records to a Store in
// the background. A full or failed write is logged and dropped; usage
// accounting never blocks or fails a turn.
type Recorder struct {
	store  Store
	logger *observability.Logger
	queue  chan Record
	done   chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// NewRecorder creates a recorder draining into store. Close releases the
// worker.
func NewRecorder(store Store, logger *observability.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan Record, 256),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go r.drain()
	return r
}

// Record enqueues one usage record without blocking.
func (r *Recorder) Record(ctx context.Context, rec llm.UsageRecord) {
	entry := Record{
		UserID:           rec.UserID,
		ConversationID:   rec.ConversationID,
		Provider:         rec.Provider,
		Model:            rec.Model,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		TotalTokens:      rec.TotalTokens,
		CostUSD:          rec.CostUSD,
		Estimated:        rec.Estimated,
		ToolCalls:        rec.ToolCalls,
		CreatedAt:        r.now().UTC(),
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn(ctx, "usage queue full, dropping record",
			"provider", rec.Provider,
			"model", rec.Model,
		)
	}
}

// Close stops the worker after the queue drains.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := r.store.Insert(ctx, &rec); err != nil {
			r.logger.Warn(ctx, "usage record write failed",
				"provider", rec.Provider,
				"model", rec.Model,
				"error", err,
			)
		}
		cancel()
	}
}
