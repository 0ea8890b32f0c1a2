// Package llm adapts chat-completion providers to the conversation types.
package llm

import (
	"context"
	"errors"

	"github.com/ashureev/flight-assistant/internal/domain"
)

// ErrNoChoices is returned when the provider answers without any completion.
var ErrNoChoices = errors.New("provider returned no choices")

// ToolDefinition describes a tool the model may request.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Model produces the next assistant message, optionally bound to tools.
type Model interface {
	Generate(ctx context.Context, messages []domain.Message, tools []ToolDefinition) (domain.Message, error)
}

// StructuredModel decodes a completion into a value matching a JSON schema.
// A response that does not decode into out is an error.
type StructuredModel interface {
	GenerateStructured(ctx context.Context, messages []domain.Message, name string, out any) error
}
