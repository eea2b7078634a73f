package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
)

// Manager enforces ownership and serializes writes per conversation.
//
// A missing conversation and one owned by someone else are both ErrNotFound
// so the API never confirms another user's conversation ids exist.
type Manager struct {
	store  Store
	logger *observability.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry

	// now is swappable for tests.
	now func() time.Time
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a manager over store.
func NewManager(store Store, logger *observability.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		locks:  make(map[string]*lockEntry),
		now:    time.Now,
	}
}

// Lock serializes turns for one conversation and returns the unlock func.
// Entries are reference counted so the lock table does not grow with
// conversation count.
func (m *Manager) Lock(id string) func() {
	m.mu.Lock()
	entry, ok := m.locks[id]
	if !ok {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

// Begin returns the conversation for this turn, creating one when id is
// empty. The second return is true for a freshly created conversation.
func (m *Manager) Begin(ctx context.Context, userID, id string) (*Conversation, bool, error) {
	if id == "" {
		now := m.now().UTC()
		conv := &Conversation{
			ID:        uuid.NewString(),
			UserID:    userID,
			Status:    StatusInProgress,
			Messages:  []Message{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.store.Insert(ctx, conv); err != nil {
			return nil, false, err
		}
		m.logger.Info(ctx, "conversation created", "conversation_id", conv.ID)
		return conv, true, nil
	}

	conv, err := m.store.Find(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if conv.UserID != userID {
		return nil, false, ErrNotFound
	}
	return conv, false, nil
}

// AppendTurn persists one exchange: the user message plus the turn's
// assistant messages. Tool traffic and empty assistant messages are
// dropped; metadata attaches to the last persisted agent message.
func (m *Manager) AppendTurn(ctx context.Context, conv *Conversation, userMessage string, turn []llm.ChatMessage, metadata map[string]any) error {
	now := m.now().UTC()

	msgs := []Message{{
		Sender:    SenderUser,
		Content:   userMessage,
		Timestamp: now,
	}}
	for _, msg := range turn {
		if msg.Role != llm.RoleAssistant || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		msgs = append(msgs, Message{
			Sender:    SenderAgent,
			Content:   msg.Content,
			Timestamp: now,
		})
	}
	if len(metadata) > 0 {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Sender == SenderAgent {
				msgs[i].Metadata = metadata
				break
			}
		}
	}

	update := FieldUpdate{
		Preview:   truncate(msgs[len(msgs)-1].Content, maxPreviewLen),
		Status:    StatusInProgress,
		UpdatedAt: now,
	}
	if conv.Title == "" {
		update.Title = truncate(userMessage, maxTitleLen)
	}

	if err := m.store.AppendMessages(ctx, conv.ID, msgs, update); err != nil {
		return err
	}

	conv.Messages = append(conv.Messages, msgs...)
	if update.Title != "" {
		conv.Title = update.Title
	}
	conv.Preview = update.Preview
	conv.UpdatedAt = now
	return nil
}

// Get returns a conversation enforcing ownership.
func (m *Manager) Get(ctx context.Context, userID, id string) (*Conversation, error) {
	conv, err := m.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// List returns the user's conversation summaries, newest first.
func (m *Manager) List(ctx context.Context, userID string, limit int) ([]Summary, error) {
	if userID == "" {
		return []Summary{}, nil
	}
	out, err := m.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// SetStatus transitions a conversation's lifecycle state, enforcing
// ownership.
func (m *Manager) SetStatus(ctx context.Context, userID, id string, status Status) error {
	if _, err := m.Get(ctx, userID, id); err != nil {
		return err
	}
	return m.store.SetStatus(ctx, id, status, m.now().UTC())
}
