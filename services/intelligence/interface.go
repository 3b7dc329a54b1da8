// Package intelligence abstracts the language-model providers behind a single
// Provider interface. The orchestrator stays provider-agnostic; each adapter
// converts between bookline's chat types and the vendor SDK's and surfaces
// token usage on every turn.
package intelligence

import (
	"context"

	"bookline/models"
)

// Message roles exchanged with a provider. The system prompt travels
// separately on the Request.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the structured outcome of one tool invocation, fed back into
// the conversation. IsError marks payloads the model should treat as
// correctable failures.
type ToolResult struct {
	ID      string
	Name    string
	Payload map[string]any
	IsError bool
}

// Message is one provider-agnostic conversation entry.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall   // assistant messages that requested tools
	ToolResults []ToolResult // tool messages carrying results back
}

// PropertySpec describes one tool argument.
type PropertySpec struct {
	Type        string // "string", "integer", "number", "boolean"
	Description string
	Enum        []string
}

// ObjectSchema is a JSON-schema-like object shape for tool input.
type ObjectSchema struct {
	Properties map[string]PropertySpec
	Required   []string
}

// AsMap renders the schema as a plain JSON-schema properties map.
func (s ObjectSchema) AsMap() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		entry := map[string]any{"type": p.Type}
		if p.Description != "" {
			entry["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			entry["enum"] = p.Enum
		}
		props[name] = entry
	}
	return props
}

// ToolSpec declares one invocable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  ObjectSchema
}

// Request is one full provider call: system prompt, history, tool catalog.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Turn is what the model produced for one round: text, tool requests, or
// both, plus usage accounting when the provider reports it.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
	Usage     models.Usage
}

// Provider is the opaque model capability consumed by the orchestrator.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Turn, error)
	ModelName() string
}
