// Package tools holds the functions the model may call. Schemas are mcp-go
// tool definitions, so the same registry serves the chat loop and cmd/mcp.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"

	"todoagent/internal/agent/llm"
)

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrInvalidArgs   = errors.New("invalid arguments")
	ErrDuplicateTool = errors.New("tool already registered")
)

// Handler runs one tool call for userID. args is the raw JSON object the
// model produced.
type Handler func(ctx context.Context, userID string, args json.RawMessage) (any, error)

type Tool struct {
	Definition mcp.Tool
	Handler    Handler
}

// Registry is built once at startup and passed to whoever needs it.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

func (r *Registry) Register(def mcp.Tool, h Handler) error {
	if def.Name == "" || h == nil {
		return fmt.Errorf("tool definition needs a name and a handler")
	}
	if _, ok := r.tools[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	r.tools[def.Name] = Tool{Definition: def, Handler: h}
	r.order = append(r.order, def.Name)
	return nil
}

func (r *Registry) MustRegister(def mcp.Tool, h Handler) {
	if err := r.Register(def, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Call runs the named tool. Unknown names return ErrUnknownTool.
func (r *Registry) Call(ctx context.Context, userID, name string, args json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Handler(ctx, userID, args)
}

// Definitions renders every tool as an llm function declaration.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name].Definition
		defs = append(defs, llm.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  schemaOf(def),
		})
	}
	return defs
}

func schemaOf(def mcp.Tool) map[string]any {
	props := def.InputSchema.Properties
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(def.InputSchema.Required) > 0 {
		schema["required"] = def.InputSchema.Required
	}
	return schema
}

// decodeArgs parses args strictly: one JSON object, no unknown fields, no
// trailing data. Empty input is treated as {}.
func decodeArgs[T any](args json.RawMessage) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	if trimmed[0] != '{' {
		return out, fmt.Errorf("%w: expected a JSON object", ErrInvalidArgs)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return out, fmt.Errorf("%w: unexpected data after the arguments object", ErrInvalidArgs)
	}
	return out, nil
}
