package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider over the OpenAI chat completions API.
//
// Normalization notes:
//   - The deprecated single function_call shape and the parallel tool_calls
//     shape both map to the flat ToolCalls slice.
//   - Arguments arrive as a JSON-encoded string and are passed through raw;
//     the tool executor owns parsing and validation.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Info describes the backend.
func (p *OpenAIProvider) Info() ProviderInfo {
	return ProviderInfo{
		Provider:     "openai",
		Model:        p.model,
		Capabilities: Capabilities{Tools: true, Moderation: true},
	}
}

// InvokeChat sends one chat completion request.
func (p *OpenAIProvider) InvokeChat(ctx context.Context, req *ChatRequest) (*AIResponse, error) {
	oaReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(req.Messages),
		Tools:    toOpenAITools(req.Tools),
	}
	if req.MaxTokens > 0 {
		oaReq.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, oaReq)
	if err != nil {
		pe := NewProviderError("openai", p.model, err)
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			pe = pe.WithStatus(apiErr.HTTPStatusCode)
		}
		return nil, pe
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", p.model, errors.New("empty choices in response"))
	}

	msg := resp.Choices[0].Message
	out := &AIResponse{
		Content:  msg.Content,
		Provider: "openai",
		Model:    resp.Model,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	// Legacy single function-call shape.
	if msg.FunctionCall != nil {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      msg.FunctionCall.Name,
			Arguments: json.RawMessage(msg.FunctionCall.Arguments),
		})
	}
	if resp.Usage.TotalTokens > 0 {
		out.Usage = &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Moderate checks input against the OpenAI moderation endpoint.
func (p *OpenAIProvider) Moderate(ctx context.Context, input string) (bool, string, error) {
	resp, err := p.client.Moderations(ctx, openai.ModerationRequest{
		Input: input,
		Model: openai.ModerationOmniLatest,
	})
	if err != nil {
		return false, "", NewProviderError("openai", "moderation", err)
	}
	if len(resp.Results) == 0 || !resp.Results[0].Flagged {
		return false, "", nil
	}
	return true, topModerationCategory(resp.Results[0].Categories), nil
}

func topModerationCategory(c openai.ResultCategories) string {
	switch {
	case c.Violence || c.ViolenceGraphic:
		return "violence"
	case c.Hate || c.HateThreatening:
		return "hate"
	case c.SelfHarm:
		return "self-harm"
	case c.Sexual || c.SexualMinors:
		return "sexual"
	case c.Harassment || c.HarassmentThreatening:
		return "harassment"
	default:
		return "other"
	}
}

func toOpenAIMessages(msgs []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case RoleAssistant:
			oa := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				oa.ToolCalls = append(oa.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, oa)
		case RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		}
	}
	return out
}

func toOpenAITools(tools []ToolSpec) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var params map[string]any
		if err := json.Unmarshal(t.Parameters, &params); err != nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return out
}
