// Package llm is the provider-neutral model interface the agent talks to.
package llm

import (
	"context"
	"encoding/json"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// Message is one entry of the chat transcript. Only assistant messages carry
// ToolCalls; only tool messages carry ToolCallID/Name.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolDefinition is a function declaration with a JSON Schema for its input.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  string
	Temperature float64
}

type Response struct {
	Content   string
	ToolCalls []ToolCall
}

type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Provider() string
}
