// Package tools implements the side-effecting capabilities the worker may invoke.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/llm"
	"github.com/mitchellh/mapstructure"
)

var (
	ErrToolUnregistered = errors.New("tool is not registered")
	ErrNilHandler       = errors.New("tool handler is nil")
	ErrToolNameEmpty    = errors.New("tool name is empty")
)

// Handler executes one tool call using parsed arguments. Failures the user
// should see are returned as content; err is reserved for malformed input.
type Handler func(ctx context.Context, arguments map[string]any) (string, error)

// Tool pairs a model-facing definition with its handler.
type Tool struct {
	Definition llm.ToolDefinition
	Handler    Handler
}

// Registry stores tools by name and executes tool calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Definition.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Definitions lists tool definitions in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Execute runs one tool call.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall) (domain.ToolResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.ToolResult{}, ctxErr
	}
	if call.Name == "" {
		return domain.ToolResult{}, fmt.Errorf("%w: call %q", ErrToolNameEmpty, call.ID)
	}

	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return domain.ToolResult{}, fmt.Errorf("%w: %q", ErrToolUnregistered, call.Name)
	}
	if t.Handler == nil {
		return domain.ToolResult{}, fmt.Errorf("%w: %q", ErrNilHandler, call.Name)
	}

	content, err := t.Handler(ctx, call.Arguments)
	if err != nil {
		return domain.ToolResult{}, err
	}

	return domain.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: content,
	}, nil
}

// Invoke runs one tool call and folds any failure into the result so the
// model can observe it. It never returns an error.
func (r *Registry) Invoke(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	result, err := r.Execute(ctx, call)
	if err != nil {
		return domain.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: errorJSON(err.Error()),
			IsError: true,
		}
	}
	return result
}

// errorJSON renders {"error": msg}.
func errorJSON(msg string) string {
	encoded, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"unencodable error"}`
	}
	return string(encoded)
}

// decodeArguments maps loosely typed model arguments onto a struct using its json tags.
func decodeArguments(arguments map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build argument decoder: %w", err)
	}
	if err := decoder.Decode(arguments); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
