// Package llm presents a single chat-invocation interface over multiple
// model backends and normalizes their tool-call and usage shapes.
package llm

import (
	"context"
	"encoding/json"
)

// Message roles used across providers. Backends map these onto their own
// wire roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one entry in the model input sequence.
type ChatMessage struct {
	// Role is system, user, assistant, or tool.
	Role string `json:"role"`

	// Content is the text payload. May be empty for tool-call-only
	// assistant turns.
	Content string `json:"content,omitempty"`

	// ToolCalls carries the assistant's tool-call intents.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID correlates a tool-role message with a prior tool call.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolName is the tool that produced a tool-role message. Some
	// backends key results by name rather than id.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolCall is a structured intent emitted by the model.
type ToolCall struct {
	// ID is the model-supplied correlation id. Backends that do not issue
	// ids get one synthesized during normalization.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Arguments is the raw JSON argument object. It is passed through
	// unparsed; the tool executor owns validation so malformed arguments
	// surface as tool results the model can react to.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSpec describes a tool advertised to the model. Parameters is a JSON
// Schema document and is the same schema the executor validates against.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Usage reports token consumption for one invocation.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`

	// Estimated is true when the backend omitted usage and the adapter
	// filled it in from the local tokenizer.
	Estimated bool `json:"estimated,omitempty"`
}

// AIResponse is the normalized result of one chat invocation.
type AIResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
}

// ChatRequest is the provider-agnostic invocation input.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	Tools     []ToolSpec    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	Tools      bool `json:"tools"`
	Moderation bool `json:"moderation"`
}

// ProviderInfo identifies a configured backend.
type ProviderInfo struct {
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	Capabilities Capabilities `json:"capabilities"`
}

// Provider is one model backend.
//
// Implementations must be safe for concurrent use; the orchestrator invokes
// them from many turns at once.
type Provider interface {
	// InvokeChat sends the message sequence and returns the normalized
	// response. Tool-call shapes (single function call or parallel calls)
	// are flattened into AIResponse.ToolCalls.
	InvokeChat(ctx context.Context, req *ChatRequest) (*AIResponse, error)

	// Name returns the stable lowercase provider id ("openai", "gemini",
	// "anthropic").
	Name() string

	// Info describes the backend and its default model.
	Info() ProviderInfo
}

// Moderator is implemented by backends that expose a content moderation
// endpoint.
type Moderator interface {
	// Moderate returns whether the input is flagged and the top category.
	Moderate(ctx context.Context, input string) (flagged bool, category string, err error)
}
