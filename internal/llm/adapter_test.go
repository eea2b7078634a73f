package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quartermasterhq/quartermaster/internal/observability"
)

type stubProvider struct {
	resp *AIResponse
	err  error
}

func (p *stubProvider) InvokeChat(ctx context.Context, req *ChatRequest) (*AIResponse, error) {
	return p.resp, p.err
}

func (p *stubProvider) Name() string { return "openai" }
func (p *stubProvider) Info() ProviderInfo {
	return ProviderInfo{Provider: "openai", Model: "gpt-4o"}
}

type captureRecorder struct {
	records []UsageRecord
}

func (r *captureRecorder) Record(ctx context.Context, rec UsageRecord) {
	r.records = append(r.records, rec)
}

func newTestAdapter(p Provider, rec UsageRecorder) *Adapter {
	return NewAdapter(p,
		observability.NewMetrics(prometheus.NewRegistry()),
		observability.NewNopLogger(),
		rec)
}

func TestAdapter_PassesThroughUsage(t *testing.T) {
	provider := &stubProvider{resp: &AIResponse{
		Content: "hi",
		Usage:   &Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		Model:   "gpt-4o",
	}}
	rec := &captureRecorder{}
	a := newTestAdapter(provider, rec)

	resp, err := a.InvokeChat(context.Background(), &ChatRequest{})
	if err != nil {
		t.Fatalf("InvokeChat() error = %v", err)
	}
	if resp.Usage.Estimated {
		t.Error("Estimated = true for backend-reported usage")
	}
	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	r := rec.records[0]
	if r.PromptTokens != 10 || r.CompletionTokens != 5 || r.TotalTokens != 15 {
		t.Errorf("record tokens = %+v", r)
	}
	if r.CostUSD <= 0 {
		t.Errorf("CostUSD = %v, want > 0", r.CostUSD)
	}
}

func TestAdapter_EstimatesMissingUsage(t *testing.T) {
	provider := &stubProvider{resp: &AIResponse{Content: "a reasonably long answer about standing desks"}}
	a := newTestAdapter(provider, nil)

	resp, err := a.InvokeChat(context.Background(), &ChatRequest{
		Messages: []ChatMessage{
			{Role: RoleSystem, Content: "you are a procurement assistant"},
			{Role: RoleUser, Content: "find me a desk"},
		},
	})
	if err != nil {
		t.Fatalf("InvokeChat() error = %v", err)
	}
	if resp.Usage == nil {
		t.Fatal("Usage = nil, want estimate")
	}
	if !resp.Usage.Estimated {
		t.Error("Estimated = false, want true")
	}
	if resp.Usage.InputTokens == 0 || resp.Usage.OutputTokens == 0 {
		t.Errorf("estimate = %+v, want non-zero tokens", resp.Usage)
	}
	if resp.Usage.TotalTokens != resp.Usage.InputTokens+resp.Usage.OutputTokens {
		t.Errorf("TotalTokens = %d, want %d", resp.Usage.TotalTokens, resp.Usage.InputTokens+resp.Usage.OutputTokens)
	}
}

func TestAdapter_ErrorDoesNotRecord(t *testing.T) {
	provider := &stubProvider{err: errors.New("backend down")}
	rec := &captureRecorder{}
	a := newTestAdapter(provider, rec)

	if _, err := a.InvokeChat(context.Background(), &ChatRequest{}); err == nil {
		t.Fatal("InvokeChat() = nil, want error")
	}
	if len(rec.records) != 0 {
		t.Errorf("records = %d, want 0", len(rec.records))
	}
}

func TestAdapter_RecordCarriesRequestContext(t *testing.T) {
	provider := &stubProvider{resp: &AIResponse{Content: "ok", Usage: &Usage{InputTokens: 1}}}
	rec := &captureRecorder{}
	a := newTestAdapter(provider, rec)

	ctx := observability.WithUserID(context.Background(), "user-1")
	ctx = observability.WithConversationID(ctx, "conv-1")
	if _, err := a.InvokeChat(ctx, &ChatRequest{}); err != nil {
		t.Fatalf("InvokeChat() error = %v", err)
	}
	r := rec.records[0]
	if r.UserID != "user-1" || r.ConversationID != "conv-1" {
		t.Errorf("record identity = (%q, %q)", r.UserID, r.ConversationID)
	}
}
