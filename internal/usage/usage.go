// Package usage persists per-invocation token consumption for cost
// reporting. Recording is best effort and asynchronous; it never sits on
// the request path.
package usage

import (
	"context"
	"time"
)

// Record is one LLM invocation's consumption.
type Record struct {
	UserID           string    `bson:"user_id,omitempty" json:"userId,omitempty"`
	ConversationID   string    `bson:"conversation_id,omitempty" json:"conversationId,omitempty"`
	Provider         string    `bson:"provider" json:"provider"`
	Model            string    `bson:"model" json:"model"`
	PromptTokens     int       `bson:"prompt_tokens" json:"promptTokens"`
	CompletionTokens int       `bson:"completion_tokens" json:"completionTokens"`
	TotalTokens      int       `bson:"total_tokens" json:"totalTokens"`
	CostUSD          float64   `bson:"cost_usd" json:"costUsd"`
	Estimated        bool      `bson:"estimated" json:"estimated"`
	ToolCalls        int       `bson:"tool_calls" json:"toolCalls"`
	CreatedAt        time.Time `bson:"created_at" json:"createdAt"`
}

// Store persists usage records.
type Store interface {
	Insert(ctx context.Context, rec *Record) error

	// TotalsByUser sums consumption for a user since the given time.
	TotalsByUser(ctx context.Context, userID string, since time.Time) (*Totals, error)
}

// Totals is an aggregate over usage records.
type Totals struct {
	PromptTokens     int     `bson:"prompt_tokens" json:"promptTokens"`
	CompletionTokens int     `bson:"completion_tokens" json:"completionTokens"`
	TotalTokens      int     `bson:"total_tokens" json:"totalTokens"`
	CostUSD          float64 `bson:"cost_usd" json:"costUsd"`
	Invocations      int     `bson:"invocations" json:"invocations"`
}
