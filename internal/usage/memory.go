package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends a record.
func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

// TotalsByUser sums consumption for a user since the given time.
func (s *MemoryStore) TotalsByUser(ctx context.Context, userID string, since time.Time) (*Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &Totals{}
	for _, rec := range s.records {
		if rec.UserID != userID || rec.CreatedAt.Before(since) {
			continue
		}
		out.PromptTokens += rec.PromptTokens
		out.CompletionTokens += rec.CompletionTokens
		out.TotalTokens += rec.TotalTokens
		out.CostUSD += rec.CostUSD
		out.Invocations++
	}
	return out, nil
}

// Records returns a snapshot of everything recorded. Test helper.
func (s *MemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
