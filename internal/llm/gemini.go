package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider over the Google Gen AI SDK.
//
// Gemini differs from the other backends in two ways this type papers over:
//   - Function calls carry no correlation id, so one is synthesized per call.
//   - Function responses are keyed by tool name, so tool-role messages must
//     carry ToolName.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string { return "gemini" }

// Info describes the backend.
func (p *GeminiProvider) Info() ProviderInfo {
	return ProviderInfo{
		Provider:     "gemini",
		Model:        p.model,
		Capabilities: Capabilities{Tools: true},
	}
}

// InvokeChat sends one generate-content request.
func (p *GeminiProvider) InvokeChat(ctx context.Context, req *ChatRequest) (*AIResponse, error) {
	contents := toGeminiContents(req.Messages)
	config := &genai.GenerateContentConfig{}
	if sys := systemText(req.Messages); sys != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: sys}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if tools := toGeminiTools(req.Tools); tools != nil {
		config.Tools = tools
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, NewProviderError("gemini", p.model, errors.New("empty candidates in response"))
	}

	out := &AIResponse{Provider: "gemini", Model: p.model}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, jsonErr := json.Marshal(part.FunctionCall.Args)
			if jsonErr != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()

	if um := resp.UsageMetadata; um != nil && um.TotalTokenCount > 0 {
		out.Usage = &Usage{
			InputTokens:  int(um.PromptTokenCount),
			OutputTokens: int(um.CandidatesTokenCount),
			TotalTokens:  int(um.TotalTokenCount),
		}
	}
	return out, nil
}

func (p *GeminiProvider) wrapError(err error) error {
	pe := NewProviderError("gemini", p.model, err)
	// The SDK folds HTTP status into the error text.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "429"), strings.Contains(s, "resource exhausted"), strings.Contains(s, "quota"):
		pe = pe.WithStatus(429)
	case strings.Contains(s, "401"), strings.Contains(s, "unauthenticated"):
		pe = pe.WithStatus(401)
	case strings.Contains(s, "403"), strings.Contains(s, "permission denied"):
		pe = pe.WithStatus(403)
	case strings.Contains(s, "503"), strings.Contains(s, "unavailable"):
		pe = pe.WithStatus(503)
	case strings.Contains(s, "500"), strings.Contains(s, "internal"):
		pe = pe.WithStatus(500)
	}
	return pe
}

// systemText concatenates system-role messages; Gemini takes them via
// SystemInstruction rather than the content list.
func systemText(msgs []ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != RoleSystem {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}

func toGeminiContents(msgs []ChatMessage) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue
		}

		content := &genai.Content{}
		switch m.Role {
		case RoleAssistant:
			content.Role = genai.RoleModel
		default:
			// Tool results come from the user side.
			content.Role = genai.RoleUser
		}

		if m.Role == RoleTool {
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     m.ToolName,
					Response: response,
				},
			})
		} else {
			if m.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Name,
						Args: args,
					},
				})
			}
		}

		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func toGeminiTools(tools []ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.Parameters, &schemaMap); err != nil {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON Schema map to Gemini's Schema type.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}
	return schema
}
