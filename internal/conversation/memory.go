package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*Conversation)}
}

// Insert creates a new conversation.
func (s *MemoryStore) Insert(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

// Find returns a conversation by id.
func (s *MemoryStore) Find(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

// AppendMessages atomically appends msgs and applies update.
func (s *MemoryStore) AppendMessages(ctx context.Context, id string, msgs []Message, update FieldUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.Messages = append(conv.Messages, msgs...)
	if update.Title != "" {
		conv.Title = update.Title
	}
	if update.Preview != "" {
		conv.Preview = update.Preview
	}
	if update.Status != "" {
		conv.Status = update.Status
	}
	if !update.UpdatedAt.IsZero() {
		conv.UpdatedAt = update.UpdatedAt
	}
	return nil
}

// SetStatus updates only the lifecycle status.
func (s *MemoryStore) SetStatus(ctx context.Context, id string, status Status, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	conv.Status = status
	conv.UpdatedAt = updatedAt
	return nil
}

// ListByUser returns the user's summaries, most recently updated first.
func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Summary
	for _, conv := range s.convs {
		if conv.UserID != userID {
			continue
		}
		out = append(out, Summary{
			ID:           conv.ID,
			Title:        conv.Title,
			Preview:      conv.Preview,
			Status:       conv.Status,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneConversation(conv *Conversation) *Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out
}
