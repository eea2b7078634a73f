package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quartermasterhq/quartermaster/internal/config"
	"github.com/quartermasterhq/quartermaster/internal/conversation"
	"github.com/quartermasterhq/quartermaster/internal/domain"
	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
	"github.com/quartermasterhq/quartermaster/internal/safety"
	"github.com/quartermasterhq/quartermaster/internal/tools"
)

const systemPrompt = `You are Quartermaster, a procurement assistant. You help users find items in the company catalog, manage their cart, and submit purchase requests for approval.

Rules:
- Use the provided tools to look up real data; never invent items, prices, or availability.
- Confirm with the user before calling checkout.
- Quote prices exactly as the catalog returns them.
- If a tool reports an error, explain the problem to the user in plain language and suggest a next step.
- Stay on the topic of procurement. Politely decline unrelated requests.`

// Canned responses for turns that end without usable model output.
const (
	maxIterationsMessage = "I wasn't able to finish that request within my processing limits. Could you break it into smaller steps?"
	toolBudgetMessage    = "That request needed more catalog lookups than I can do in one turn. Please narrow it down and try again."
	fallbackMessage      = "I'm sorry, I couldn't come up with a response to that. Could you rephrase your request?"
)

// ChatInput is one user turn.
type ChatInput struct {
	// UserID is empty for unauthenticated callers, who can search but not
	// touch carts.
	UserID string

	// ConversationID continues an existing conversation when set.
	ConversationID string

	// Provider optionally pins this turn to a named backend. It must name a
	// configured backend; anything else fails validation.
	Provider string

	Message string
}

// TurnResult is the outcome of one orchestrated turn.
type TurnResult struct {
	ConversationID       string         `json:"conversationId"`
	Content              string         `json:"content"`
	Iterations           int            `json:"iterations"`
	ToolCalls            int            `json:"toolCalls"`
	MaxIterationsReached bool           `json:"maxIterationsReached,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// Orchestrator drives the reason-act loop for chat turns.
type Orchestrator struct {
	cfg           config.AgentConfig
	provider      llm.Provider
	providers     map[string]llm.Provider
	registry      *tools.Registry
	executor      *tools.Executor
	conversations *conversation.Manager
	history       *conversation.HistoryBuilder
	carts         domain.CartService
	moderation    *safety.Moderation
	metrics       *observability.Metrics
	logger        *observability.Logger
}

// Deps wires an Orchestrator.
type Deps struct {
	Config   config.AgentConfig
	Provider llm.Provider

	// Providers holds every configured backend keyed by canonical name,
	// used for per-request overrides. May be nil when only the default
	// backend exists.
	Providers map[string]llm.Provider

	Registry      *tools.Registry
	Executor      *tools.Executor
	Conversations *conversation.Manager
	History       *conversation.HistoryBuilder
	Carts         domain.CartService
	Moderation    *safety.Moderation
	Metrics       *observability.Metrics
	Logger        *observability.Logger
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:           deps.Config,
		provider:      deps.Provider,
		providers:     deps.Providers,
		registry:      deps.Registry,
		executor:      deps.Executor,
		conversations: deps.Conversations,
		history:       deps.History,
		carts:         deps.Carts,
		moderation:    deps.Moderation,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
	}
}

// Chat runs one full turn: safety screening, prompt assembly, the
// model/tool loop, and persistence.
func (o *Orchestrator) Chat(ctx context.Context, input ChatInput) (*TurnResult, error) {
	start := time.Now()
	res, err := o.chat(ctx, input)

	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.AgentRequests.WithLabelValues(status).Inc()
	o.metrics.AgentRequestDuration.Observe(time.Since(start).Seconds())
	return res, err
}

func (o *Orchestrator) chat(ctx context.Context, input ChatInput) (*TurnResult, error) {
	if input.UserID != "" {
		ctx = observability.WithUserID(ctx, input.UserID)
	}

	message, err := o.screen(ctx, input.Message)
	if err != nil {
		return nil, err
	}

	provider, err := o.pickProvider(input.Provider)
	if err != nil {
		return nil, err
	}

	conv, _, err := o.conversations.Begin(ctx, input.UserID, input.ConversationID)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return nil, err
		}
		return nil, Wrap(CodePersistenceFailed, "could not load conversation", err)
	}
	ctx = observability.WithConversationID(ctx, conv.ID)

	// One turn at a time per conversation; concurrent turns would
	// interleave histories.
	unlock := o.conversations.Lock(conv.ID)
	defer unlock()

	cartContext := o.cartContext(ctx, input.UserID)

	messages, err := o.history.Build(ctx, conv, systemPrompt, cartContext, message, conversation.Budget{
		MaxTokens:      o.cfg.MaxInputTokens,
		MaxTotalTokens: o.cfg.MaxTotalTokens,
		MaxMessages:    o.cfg.MaxHistoryMessages,
	})
	if err != nil {
		return nil, classify(err)
	}

	outcome, err := o.loop(ctx, provider, input.UserID, messages)
	if err != nil {
		return nil, classify(err)
	}

	if err := o.conversations.AppendTurn(ctx, conv, message, outcome.turnMessages, outcome.metadata); err != nil {
		return nil, Wrap(CodePersistenceFailed, "could not persist turn", err)
	}

	return &TurnResult{
		ConversationID:       conv.ID,
		Content:              outcome.content,
		Iterations:           outcome.iterations,
		ToolCalls:            outcome.toolCalls,
		MaxIterationsReached: outcome.maxIterationsReached,
		Metadata:             outcome.metadata,
	}, nil
}

// pickProvider resolves the per-request provider override against the
// configured backends. Empty means the default.
func (o *Orchestrator) pickProvider(name string) (llm.Provider, error) {
	if name == "" {
		return o.provider, nil
	}
	canonical := llm.CanonicalName(name)
	if p, ok := o.providers[canonical]; ok {
		return p, nil
	}
	if canonical != "" && o.provider.Name() == canonical {
		return o.provider, nil
	}
	o.metrics.ValidationErrors.WithLabelValues("schema").Inc()
	return nil, E(CodeValidationFailed, fmt.Sprintf("provider %q is not configured", name))
}

// screen validates and sanitizes user input and runs the safety checks.
func (o *Orchestrator) screen(ctx context.Context, raw string) (string, error) {
	if len(raw) > safety.MaxInputLength {
		o.metrics.ValidationErrors.WithLabelValues("schema").Inc()
		return "", E(CodeValidationFailed, fmt.Sprintf("message exceeds %d characters", safety.MaxInputLength))
	}

	message := safety.Sanitize(raw)
	if message == "" {
		o.metrics.ValidationErrors.WithLabelValues("schema").Inc()
		return "", E(CodeValidationFailed, "message must not be empty")
	}

	if check := safety.CheckInjection(message); check.Reject() {
		o.metrics.ValidationErrors.WithLabelValues("prompt_injection").Inc()
		o.logger.Warn(ctx, "input rejected as prompt injection", "pattern", check.Pattern)
		return "", E(CodePromptInjectionRejected, "message was rejected by safety checks")
	}

	if result := o.moderation.Check(ctx, message); result.Flagged {
		return "", E(CodeContentModerated, "message was blocked by content moderation")
	}
	return message, nil
}

// cartContext renders the user's cart for the system prompt. Failures and
// empty carts both yield no context; the model can still call get_cart.
func (o *Orchestrator) cartContext(ctx context.Context, userID string) string {
	if userID == "" || o.carts == nil {
		return ""
	}
	cart, err := o.carts.GetCart(ctx, userID)
	if err != nil {
		o.logger.Warn(ctx, "cart context unavailable", "error", err)
		return ""
	}
	return FormatCartContext(cart)
}

// FormatCartContext renders a cart as deterministic prompt text, one line
// per item in stable item order. Empty carts render as nothing.
func FormatCartContext(cart *domain.Cart) string {
	if cart == nil || len(cart.Items) == 0 {
		return ""
	}

	items := make([]domain.CartItem, len(cart.Items))
	copy(items, cart.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })

	var b strings.Builder
	fmt.Fprintf(&b, "Current cart (%d items, total $%.2f):\n", cart.ItemCount, cart.TotalCost)
	for _, it := range items {
		fmt.Fprintf(&b, "- %s (id: %s): %d x $%.2f\n", it.ItemName, it.ItemID, it.Quantity, it.ItemPrice)
	}
	return strings.TrimRight(b.String(), "\n")
}

// loopOutcome carries the state the loop produced for one turn.
type loopOutcome struct {
	content              string
	iterations           int
	toolCalls            int
	maxIterationsReached bool
	turnMessages         []llm.ChatMessage
	metadata             map[string]any
}

// loop runs the bounded reason-act cycle.
func (o *Orchestrator) loop(ctx context.Context, provider llm.Provider, userID string, messages []llm.ChatMessage) (*loopOutcome, error) {
	specs := o.registry.Specs()
	acc := newMetadataAccumulator()
	out := &loopOutcome{}

	// The most recent non-empty assistant text; on an iteration-cap exit it
	// is a better answer than the canned message.
	var lastContent string
	finished := false

	for out.iterations < o.cfg.MaxIterations {
		out.iterations++
		o.metrics.AgentIterations.Inc()

		resp, err := provider.InvokeChat(ctx, &llm.ChatRequest{
			Messages: messages,
			Tools:    specs,
		})
		if err != nil {
			return nil, err
		}

		assistant := llm.ChatMessage{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)
		out.turnMessages = append(out.turnMessages, assistant)
		if strings.TrimSpace(resp.Content) != "" {
			lastContent = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			out.content = resp.Content
			finished = true
			break
		}

		if out.toolCalls+len(resp.ToolCalls) > o.cfg.MaxToolCallsPerTurn {
			o.logger.Warn(ctx, "tool call budget exhausted",
				"executed", out.toolCalls,
				"requested", len(resp.ToolCalls),
				"budget", o.cfg.MaxToolCallsPerTurn,
			)
			out.content = toolBudgetMessage
			out.turnMessages = append(out.turnMessages, llm.ChatMessage{
				Role:    llm.RoleAssistant,
				Content: toolBudgetMessage,
			})
			out.metadata = acc.result()
			return out, nil
		}
		out.toolCalls += len(resp.ToolCalls)

		results := o.executor.ExecuteAll(ctx, userID, resp.ToolCalls)
		for _, res := range results {
			acc.absorb(res)
			msg := res.Message()
			messages = append(messages, msg)
			out.turnMessages = append(out.turnMessages, msg)
		}
	}

	if !finished {
		o.logger.Warn(ctx, "iteration limit reached", "iterations", out.iterations)
		out.maxIterationsReached = true
		if lastContent != "" {
			// The content already sits in a persisted assistant message.
			out.content = lastContent
		} else {
			out.content = maxIterationsMessage
			out.turnMessages = append(out.turnMessages, llm.ChatMessage{
				Role:    llm.RoleAssistant,
				Content: maxIterationsMessage,
			})
		}
	}
	if out.content == "" {
		out.content = fallbackMessage
		out.turnMessages = append(out.turnMessages, llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: fallbackMessage,
		})
	}

	out.metadata = acc.result()
	return out, nil
}
