// Package conversation persists chat transcripts and builds the
// token-budgeted message history sent to the model.
package conversation

import (
	"errors"
	"time"
)

// Conversation lifecycle states.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Message senders. Tool traffic is never persisted; it exists only inside
// a single turn.
const (
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

const (
	maxTitleLen   = 120
	maxPreviewLen = 100
)

// Message is one persisted transcript entry.
type Message struct {
	Sender    string         `bson:"sender" json:"sender"`
	Content   string         `bson:"content" json:"content"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Conversation is one user's chat thread.
type Conversation struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"userId"`
	Title     string    `bson:"title" json:"title"`
	Preview   string    `bson:"preview" json:"preview"`
	Status    Status    `bson:"status" json:"status"`
	Messages  []Message `bson:"messages" json:"messages"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Summary is the list-view projection of a conversation.
type Summary struct {
	ID           string    `bson:"_id" json:"id"`
	Title        string    `bson:"title" json:"title"`
	Preview      string    `bson:"preview" json:"preview"`
	Status       Status    `bson:"status" json:"status"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
	MessageCount int       `bson:"message_count" json:"messageCount"`
}

// ErrNotFound covers both a missing conversation and one owned by another
// user; callers cannot distinguish the two.
var ErrNotFound = errors.New("conversation not found")

// truncate clips s to max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
