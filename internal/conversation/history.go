package conversation

import (
	"context"
	"errors"

	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
	"github.com/quartermasterhq/quartermaster/internal/tokens"
)

// ErrTokenLimitExceeded means the untruncatable parts of the prompt (system
// prompt plus the current user message) alone blow the hard token ceiling.
var ErrTokenLimitExceeded = errors.New("message exceeds token limit")

// minHistoryBudget is the floor for the prompt budget; anything smaller
// cannot hold a useful exchange.
const minHistoryBudget = 512

// Budget bounds the prompt the history builder assembles.
type Budget struct {
	// MaxTokens is the soft prompt budget; history and cart context are
	// trimmed to fit it.
	MaxTokens int

	// MaxTotalTokens is the hard ceiling; required parts beyond it reject
	// the turn instead of truncating.
	MaxTotalTokens int

	// MaxMessages caps how many stored messages are even considered.
	MaxMessages int
}

// HistoryBuilder assembles the model input for one turn under a token
// budget.
//
// Selection runs newest to oldest so the freshest context survives, then
// re-reverses so the model sees chronological order. The system prompt and
// the current user message are never truncated; cart context is
// all-or-nothing.
type HistoryBuilder struct {
	counter    *tokens.Counter
	metrics    *observability.Metrics
	logger     *observability.Logger
	summarizer Summarizer
}

// Summarizer condenses messages that fall outside the token budget. Without
// one, over-budget history is simply dropped.
type Summarizer interface {
	Summarize(ctx context.Context, dropped []llm.ChatMessage) (string, error)
}

// NewHistoryBuilder creates a builder tuned for the named model.
func NewHistoryBuilder(model string, metrics *observability.Metrics, logger *observability.Logger) *HistoryBuilder {
	return &HistoryBuilder{
		counter: tokens.ForModel(model),
		metrics: metrics,
		logger:  logger,
	}
}

// WithSummarizer installs a summarizer for dropped history and returns the
// builder.
func (b *HistoryBuilder) WithSummarizer(s Summarizer) *HistoryBuilder {
	b.summarizer = s
	return b
}

// Build assembles the message sequence for one turn. conv may be nil for a
// fresh conversation.
func (b *HistoryBuilder) Build(ctx context.Context, conv *Conversation, systemPrompt, cartContext, userMessage string, budget Budget) ([]llm.ChatMessage, error) {
	if budget.MaxTokens < minHistoryBudget {
		budget.MaxTokens = minHistoryBudget
	}
	if budget.MaxTotalTokens < budget.MaxTokens {
		budget.MaxTotalTokens = budget.MaxTokens
	}

	required := b.counter.CountMessage(llm.RoleSystem, systemPrompt) +
		b.counter.CountMessage(llm.RoleUser, userMessage)
	if required > budget.MaxTotalTokens {
		b.metrics.ConversationTruncations.WithLabelValues("total_tokens").Inc()
		b.logger.Warn(ctx, "prompt exceeds hard token ceiling",
			"required_tokens", required,
			"max_total_tokens", budget.MaxTotalTokens,
		)
		return nil, ErrTokenLimitExceeded
	}

	remaining := budget.MaxTokens - required
	if remaining < 0 {
		remaining = 0
	}

	system := systemPrompt
	if cartContext != "" {
		cost := b.counter.Count(cartContext)
		if cost <= remaining {
			system = systemPrompt + "\n\n" + cartContext
			remaining -= cost
		} else {
			// All-or-nothing: a partial cart listing is worse than none.
			b.metrics.ConversationTruncations.WithLabelValues("token_budget").Inc()
			b.logger.Info(ctx, "cart context dropped from prompt",
				"cart_tokens", cost,
				"remaining_tokens", remaining,
			)
		}
	}

	history, dropped := b.selectHistory(ctx, conv, budget, remaining)
	if b.summarizer != nil && len(dropped) > 0 {
		summary, err := b.summarizer.Summarize(ctx, dropped)
		switch {
		case err != nil:
			b.logger.Warn(ctx, "history summarization failed", "error", err)
		case summary != "":
			system += "\n\nEarlier conversation summary: " + summary
		}
	}

	out := make([]llm.ChatMessage, 0, len(history)+2)
	out = append(out, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	out = append(out, history...)
	out = append(out, llm.ChatMessage{Role: llm.RoleUser, Content: userMessage})
	return out, nil
}

// selectHistory picks stored messages newest to oldest under the remaining
// budget. It returns the kept window in chronological order plus whatever
// was cut, oldest first.
func (b *HistoryBuilder) selectHistory(ctx context.Context, conv *Conversation, budget Budget, remaining int) (kept, dropped []llm.ChatMessage) {
	if conv == nil || len(conv.Messages) == 0 {
		return nil, nil
	}

	candidates := make([]llm.ChatMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		switch m.Sender {
		case SenderUser:
			candidates = append(candidates, llm.ChatMessage{Role: llm.RoleUser, Content: m.Content})
		case SenderAgent:
			candidates = append(candidates, llm.ChatMessage{Role: llm.RoleAssistant, Content: m.Content})
		}
	}

	total := len(candidates)
	if budget.MaxMessages > 0 && total > budget.MaxMessages {
		dropped = append(dropped, candidates[:total-budget.MaxMessages]...)
		candidates = candidates[total-budget.MaxMessages:]
		b.metrics.ConversationTruncations.WithLabelValues("message_count").Inc()
		b.logger.Info(ctx, "history truncated by message count",
			"stored_messages", total,
			"kept_messages", len(candidates),
		)
	}

	// Newest to oldest, stopping at the first message that does not fit so
	// the kept window stays contiguous.
	var selected []llm.ChatMessage
	for i := len(candidates) - 1; i >= 0; i-- {
		cost := b.counter.CountMessage(candidates[i].Role, candidates[i].Content)
		if cost > remaining {
			break
		}
		selected = append(selected, candidates[i])
		remaining -= cost
	}
	if len(selected) < len(candidates) {
		dropped = append(dropped, candidates[:len(candidates)-len(selected)]...)
		b.metrics.ConversationTruncations.WithLabelValues("token_budget").Inc()
		b.logger.Info(ctx, "history truncated by token budget",
			"candidate_messages", len(candidates),
			"kept_messages", len(selected),
		)
	}

	// Re-reverse into chronological order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected, dropped
}
