package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/llm"
	"github.com/ashureev/flight-assistant/internal/tools"
)

// Worker produces the next assistant turn from the conversation so far.
type Worker struct {
	model llm.Model
	tools []llm.ToolDefinition
	now   func() time.Time
}

// NewWorker binds a model to the tool definitions it may request.
func NewWorker(model llm.Model, definitions []llm.ToolDefinition) *Worker {
	return &Worker{
		model: model,
		tools: definitions,
		now:   time.Now,
	}
}

// Step returns one assistant message. It does not mutate state.
func (w *Worker) Step(ctx context.Context, state *domain.ConversationState) (domain.Message, error) {
	if fareColdStart(state.Messages) {
		return domain.AssistantMessage(ColdStartStopMessage), nil
	}

	prompt := w.Prompt(state)
	reply, err := w.model.Generate(ctx, prompt, w.tools)
	if err != nil {
		return domain.Message{}, fmt.Errorf("worker model: %w", err)
	}
	if reply.Role == "" {
		reply.Role = domain.RoleAssistant
	}
	return reply, nil
}

// Prompt is a fresh System instruction followed by every non-System entry in order.
func (w *Worker) Prompt(state *domain.ConversationState) []domain.Message {
	system := domain.SystemMessage(workerSystemPrompt(
		w.now(),
		state.SuccessCriteria,
		state.Feedback(),
		tools.FareSearchToolName,
		tools.EmailToolName,
	))
	history := domain.WithoutSystem(state.Messages)
	return append([]domain.Message{system}, history...)
}

// isColdStartStop reports whether reply is the fixed cold-start notice.
func isColdStartStop(reply domain.Message) bool {
	return !reply.HasToolCalls() && reply.Content == ColdStartStopMessage
}

// fareColdStart reports whether the tool results answering the latest
// invocation request include a fare search that hit a waking upstream.
func fareColdStart(messages []domain.Message) bool {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != domain.RoleTool {
			return false
		}
		if m.Name == tools.FareSearchToolName && tools.IsColdStart(m.Content) {
			return true
		}
	}
	return false
}
