package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/llm"
)

const judgmentSchemaName = "evaluator_output"

// Evaluator judges the latest assistant output against the success criterion.
type Evaluator struct {
	model llm.StructuredModel
}

// NewEvaluator creates an evaluator backed by a structured-output model.
func NewEvaluator(model llm.StructuredModel) *Evaluator {
	return &Evaluator{model: model}
}

// Evaluate returns a judgment. Decoding failures propagate as errors.
func (e *Evaluator) Evaluate(ctx context.Context, state *domain.ConversationState) (domain.EvaluatorJudgment, error) {
	lastResponse := toolCallPlaceholder
	if text := state.LastText(); text != "" {
		lastResponse = text
	}

	prompt := []domain.Message{
		domain.SystemMessage(evaluatorSystemPrompt),
		domain.HumanMessage(evaluatorUserPrompt(formatTranscript(state.Messages), state.SuccessCriteria, lastResponse)),
	}

	var judgment domain.EvaluatorJudgment
	if err := e.model.GenerateStructured(ctx, prompt, judgmentSchemaName, &judgment); err != nil {
		return domain.EvaluatorJudgment{}, fmt.Errorf("evaluator model: %w", err)
	}
	return judgment, nil
}

// formatTranscript renders User and Assistant turns as plain text.
func formatTranscript(messages []domain.Message) string {
	var b strings.Builder
	b.WriteString(transcriptHeader)
	for _, m := range messages {
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("User: " + m.Content + "\n")
		case domain.RoleAssistant:
			text := m.Content
			if text == "" {
				text = toolCallPlaceholder
			}
			b.WriteString("Assistant: " + text + "\n")
		case domain.RoleSystem, domain.RoleTool:
			continue
		}
	}
	return b.String()
}
