package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), observability.NewNopLogger())
}

func TestBegin_CreatesConversation(t *testing.T) {
	m := newTestManager()

	conv, created, err := m.Begin(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if conv.ID == "" {
		t.Error("new conversation has empty id")
	}
	if conv.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", conv.UserID)
	}
	if conv.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", conv.Status, StatusInProgress)
	}

	// The new conversation is findable right away.
	got, _, err := m.Begin(context.Background(), "user-1", conv.ID)
	if err != nil {
		t.Fatalf("Begin(existing) error = %v", err)
	}
	if got.ID != conv.ID {
		t.Errorf("ID = %q, want %q", got.ID, conv.ID)
	}
}

func TestBegin_OtherUsersConversationHidden(t *testing.T) {
	m := newTestManager()

	conv, _, err := m.Begin(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	if _, _, err := m.Begin(context.Background(), "user-2", conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendTurn_PersistsExchange(t *testing.T) {
	m := newTestManager()
	conv, _, err := m.Begin(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	turn := []llm.ChatMessage{
		{Role: llm.RoleAssistant, Content: "", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_cart"}}},
		{Role: llm.RoleTool, Content: `{"items":[]}`, ToolCallID: "c1", ToolName: "get_cart"},
		{Role: llm.RoleAssistant, Content: "your cart is empty"},
	}
	meta := map[string]any{"cart": map[string]any{"itemCount": 0}}

	if err := m.AppendTurn(context.Background(), conv, "what is in my cart?", turn, meta); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	got, err := m.Get(context.Background(), "user-1", conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// User message plus one non-empty assistant message; tool traffic and
	// the empty assistant message are dropped.
	if len(got.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Sender != SenderUser || got.Messages[0].Content != "what is in my cart?" {
		t.Errorf("messages[0] = %+v", got.Messages[0])
	}
	if got.Messages[1].Sender != SenderAgent || got.Messages[1].Content != "your cart is empty" {
		t.Errorf("messages[1] = %+v", got.Messages[1])
	}
	if got.Messages[1].Metadata == nil {
		t.Error("metadata missing from agent message")
	}
	if got.Title != "what is in my cart?" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Preview != "your cart is empty" {
		t.Errorf("Preview = %q", got.Preview)
	}
}

func TestAppendTurn_DropsWhitespaceOnlyAssistantContent(t *testing.T) {
	m := newTestManager()
	conv, _, err := m.Begin(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	turn := []llm.ChatMessage{
		{Role: llm.RoleAssistant, Content: "  \n\t ", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_cart"}}},
		{Role: llm.RoleTool, Content: `{"items":[]}`, ToolCallID: "c1", ToolName: "get_cart"},
		{Role: llm.RoleAssistant, Content: "your cart is empty"},
	}
	if err := m.AppendTurn(context.Background(), conv, "anything in my cart?", turn, nil); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	got, err := m.Get(context.Background(), "user-1", conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2 (blank assistant message dropped)", len(got.Messages))
	}
	if got.Messages[1].Content != "your cart is empty" {
		t.Errorf("messages[1].Content = %q", got.Messages[1].Content)
	}
}

func TestAppendTurn_TitleSetOnceAndTruncated(t *testing.T) {
	m := newTestManager()
	conv, _, err := m.Begin(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	long := strings.Repeat("desk ", 50)
	reply := []llm.ChatMessage{{Role: llm.RoleAssistant, Content: "ok"}}
	if err := m.AppendTurn(context.Background(), conv, long, reply, nil); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	firstTitle := conv.Title
	if got := len([]rune(firstTitle)); got > maxTitleLen {
		t.Errorf("title length = %d, want <= %d", got, maxTitleLen)
	}

	if err := m.AppendTurn(context.Background(), conv, "second turn", reply, nil); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	got, err := m.Get(context.Background(), "user-1", conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != firstTitle {
		t.Errorf("Title changed on second turn: %q -> %q", firstTitle, got.Title)
	}
}

func TestList_EmptyUserID(t *testing.T) {
	m := newTestManager()

	out, err := m.List(context.Background(), "", 20)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", out)
	}
}

func TestSetStatus_EnforcesOwnership(t *testing.T) {
	m := newTestManager()
	conv, _, err := m.Begin(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	if err := m.SetStatus(context.Background(), "user-2", conv.ID, StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := m.SetStatus(context.Background(), "user-1", conv.ID, StatusCompleted); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	got, err := m.Get(context.Background(), "user-1", conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}
}

func TestLock_Serializes(t *testing.T) {
	m := newTestManager()

	unlock := m.Lock("conv-1")
	acquired := make(chan struct{})
	go func() {
		u := m.Lock("conv-1")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first still held")
	default:
	}

	unlock()
	<-acquired
}
