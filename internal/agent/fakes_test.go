package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/llm"
	"github.com/ashureev/flight-assistant/internal/session"
	"github.com/ashureev/flight-assistant/internal/store"
	"github.com/ashureev/flight-assistant/internal/tools"
)

var errScriptExhausted = errors.New("scripted model has no more replies")

// scriptedModel replays assistant messages in order and records every prompt.
type scriptedModel struct {
	mu      sync.Mutex
	replies []domain.Message
	err     error
	prompts [][]domain.Message
}

func (m *scriptedModel) Generate(_ context.Context, messages []domain.Message, _ []llm.ToolDefinition) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, domain.CloneMessages(messages))
	if m.err != nil {
		return domain.Message{}, m.err
	}
	if len(m.replies) == 0 {
		return domain.Message{}, errScriptExhausted
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *scriptedModel) prompt(i int) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[i]
}

// modelFunc adapts a function to llm.Model.
type modelFunc func(ctx context.Context, messages []domain.Message) (domain.Message, error)

func (f modelFunc) Generate(ctx context.Context, messages []domain.Message, _ []llm.ToolDefinition) (domain.Message, error) {
	return f(ctx, messages)
}

// scriptedJudge returns verdicts in order and repeats the last one once exhausted.
type scriptedJudge struct {
	mu       sync.Mutex
	verdicts []domain.EvaluatorJudgment
	err      error
	prompts  [][]domain.Message
}

func (j *scriptedJudge) GenerateStructured(_ context.Context, messages []domain.Message, _ string, out any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prompts = append(j.prompts, domain.CloneMessages(messages))
	if j.err != nil {
		return j.err
	}
	verdict := j.verdicts[0]
	if len(j.verdicts) > 1 {
		j.verdicts = j.verdicts[1:]
	}
	*(out.(*domain.EvaluatorJudgment)) = verdict
	return nil
}

func approve() domain.EvaluatorJudgment {
	return domain.EvaluatorJudgment{Feedback: "looks good", SuccessCriteriaMet: true}
}

func stubTool(name, content string) tools.Tool {
	return tools.Tool{
		Definition: llm.ToolDefinition{Name: name, Description: name, InputSchema: map[string]any{"type": "object"}},
		Handler: func(context.Context, map[string]any) (string, error) {
			return content, nil
		},
	}
}

func fareCall(id string) domain.ToolCall {
	return domain.ToolCall{
		ID:   id,
		Name: tools.FareSearchToolName,
		Arguments: map[string]any{
			"origin":      "MAD",
			"destination": "LON",
			"date":        "2025-07-01",
		},
	}
}

func newTestGraph(model llm.Model, judge llm.StructuredModel, registry *tools.Registry, opts ...GraphOption) *Graph {
	return NewGraph(NewWorker(model, registry.Definitions()), registry, NewEvaluator(judge), opts...)
}

func newTestService(model llm.Model, judge llm.StructuredModel, registry *tools.Registry, opts ...ServiceOption) (*Service, *store.MemoryStore) {
	repo := store.NewMemory()
	svc := NewService(session.NewManager(repo), newTestGraph(model, judge, registry), opts...)
	return svc, repo
}
