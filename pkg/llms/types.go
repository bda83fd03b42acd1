// Package llms provides central and per-agent LLM provider implementations.
package llms

import "context"

// Message is the universal format for multi-turn conversations with tool
// support, shared across all providers.
type Message struct {
	Role       string     `json:"role"` // "user", "assistant", "system", "tool"
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDefinition is a tool/function the model may call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
	RawArgs   string                 `json:"raw_args,omitempty"`
}

// Provider is the abstract LLM completion surface. Both the central
// coordinator channel and per-agent default channel are built on it.
type Provider interface {
	// Generate performs a single non-streaming completion.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (text string, toolCalls []ToolCall, tokens int, err error)

	// GenerateStructured performs a completion constrained to a JSON schema.
	// The OpenAI and Anthropic providers instruct the model via system
	// prompt; the Ollama provider passes the schema as its native format.
	GenerateStructured(ctx context.Context, messages []Message, schema map[string]interface{}) (text string, tokens int, err error)

	GetModelName() string
	Close() error
}
