// File: services/intelligence/gemini.go
package intelligence

import (
	"context"
	"fmt"

	"bookline/models"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "models/gemini-1.5-pro"

// GeminiProvider implements Provider on top of Google's Generative AI SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) ModelName() string { return p.model }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Turn, error) {
	model := p.client.GenerativeModel(p.model)

	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(req.Tools)}}
	}

	history, last := toGeminiContents(req.Messages)
	if last == nil {
		return nil, models.NewProviderError("gemini request has no sendable message", nil)
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, models.NewProviderError("gemini generate error", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, models.NewProviderError("gemini returned no candidates", nil)
	}

	turn := &Turn{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			turn.Text += string(v)
		case genai.FunctionCall:
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:   v.Name, // Gemini carries no call ids; the name is the correlation key
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	if resp.UsageMetadata != nil {
		turn.Usage = models.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return turn, nil
}

// toGeminiContents maps provider-agnostic messages to genai contents. The
// final message is returned separately as the parts to send; everything
// before it becomes chat history.
func toGeminiContents(messages []Message) ([]*genai.Content, []genai.Part) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			parts := make([]genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case RoleTool:
			parts := make([]genai.Part, 0, len(msg.ToolResults))
			for _, res := range msg.ToolResults {
				parts = append(parts, genai.FunctionResponse{Name: res.Name, Response: res.Payload})
			}
			contents = append(contents, &genai.Content{Role: "function", Parts: parts})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(contents) == 0 {
		return nil, nil
	}
	last := contents[len(contents)-1]
	return contents[:len(contents)-1], last.Parts
}

func toGeminiDeclarations(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		props := make(map[string]*genai.Schema, len(tool.Parameters.Properties))
		for name, prop := range tool.Parameters.Properties {
			props[name] = &genai.Schema{
				Type:        geminiType(prop.Type),
				Description: prop.Description,
				Enum:        prop.Enum,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   tool.Parameters.Required,
			},
		})
	}
	return decls
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}
