package conversation

import (
	"context"
	"time"
)

// FieldUpdate carries the denormalized fields written alongside appended
// messages.
type FieldUpdate struct {
	Title     string
	Preview   string
	Status    Status
	UpdatedAt time.Time
}

// Store persists conversations.
//
// Implementations return ErrNotFound for unknown ids. They never enforce
// ownership; that is the Manager's job, so a store stays a dumb document
// mapper.
type Store interface {
	// Insert creates a new conversation.
	Insert(ctx context.Context, conv *Conversation) error

	// Find returns a conversation by id.
	Find(ctx context.Context, id string) (*Conversation, error)

	// AppendMessages atomically appends msgs and applies update.
	AppendMessages(ctx context.Context, id string, msgs []Message, update FieldUpdate) error

	// SetStatus updates only the lifecycle status.
	SetStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error

	// ListByUser returns summaries for the user's conversations, most
	// recently updated first, up to limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]Summary, error)
}
