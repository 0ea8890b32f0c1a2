package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/tools"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const faresJSON = `{"fares":[{"flightNumber":"FR502","price":{"value":39.99,"currency":"EUR"}}]}`

func newTurn(input string) *domain.ConversationState {
	state := domain.NewConversationState("thread-1", time.Now())
	state.BeginTurn(input, "")
	return state
}

func TestGraph_ToolRoundTripThenEnd(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("", fareCall("call_1")),
		domain.AssistantMessage("FR502 at 39.99 EUR. " + EmailOffer),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{approve()}}
	registry := tools.NewRegistry(stubTool(tools.FareSearchToolName, faresJSON))

	var visited []int
	checkpoint := func(_ context.Context, s *domain.ConversationState) error {
		visited = append(visited, len(s.Messages))
		return nil
	}

	state := newTurn("vuelos de Madrid a Londres el 1 de julio")
	reply, err := newTestGraph(model, judge, registry).Run(context.Background(), state, checkpoint)
	require.NoError(t, err)

	assert.Contains(t, reply, "FR502")
	assert.True(t, state.SuccessCriteriaMet)
	assert.Equal(t, 2, model.calls())

	require.Len(t, state.Messages, 4)
	assert.Equal(t, domain.RoleUser, state.Messages[0].Role)
	assert.True(t, state.Messages[1].HasToolCalls())
	assert.Equal(t, domain.RoleTool, state.Messages[2].Role)
	assert.Equal(t, "call_1", state.Messages[2].ToolCallID)
	assert.Equal(t, faresJSON, state.Messages[2].Content)
	assert.Equal(t, domain.RoleAssistant, state.Messages[3].Role)

	// worker, tools, worker, evaluator
	assert.Equal(t, []int{2, 3, 4, 4}, visited)

	second := model.prompt(1)
	assert.Equal(t, domain.RoleTool, second[len(second)-1].Role)
}

func TestGraph_RejectionFeedsBackVerbatim(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("Here are some flights."),
		domain.AssistantMessage("FR502 at 39.99 EUR. " + EmailOffer),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{
		{Feedback: "Include prices in EUR and offer email."},
		approve(),
	}}

	state := newTurn("vuelos MAD LON")
	_, err := newTestGraph(model, judge, tools.NewRegistry()).Run(context.Background(), state, nil)
	require.NoError(t, err)

	require.Equal(t, 2, model.calls())
	assert.NotContains(t, model.prompt(0)[0].Content, "Previously your reply was rejected")

	retry := model.prompt(1)
	assert.Equal(t, domain.RoleSystem, retry[0].Role)
	assert.Contains(t, retry[0].Content, "Previously your reply was rejected. Feedback: Include prices in EUR and offer email.")
	for _, m := range retry[1:] {
		assert.NotEqual(t, domain.RoleSystem, m.Role)
	}

	assert.Equal(t, 2, state.Cycles)
	for _, m := range state.Messages {
		assert.NotContains(t, m.Content, "Include prices in EUR")
	}
}

func TestGraph_ColdStartStopsWithoutModelCall(t *testing.T) {
	for name, content := range map[string]string{
		"cold start warning": tools.ColdStartWarning,
		"error payload 502":  `{"error":"Error HTTP 502: Bad Gateway"}`,
	} {
		t.Run(name, func(t *testing.T) {
			model := &scriptedModel{replies: []domain.Message{
				domain.AssistantMessage("", fareCall("call_1")),
			}}
			judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{{Feedback: "wait", UserInputNeeded: true}}}
			registry := tools.NewRegistry(stubTool(tools.FareSearchToolName, content))

			state := newTurn("vuelos MAD LON")
			reply, err := newTestGraph(model, judge, registry).Run(context.Background(), state, nil)
			require.NoError(t, err)

			assert.Equal(t, ColdStartStopMessage, reply)
			assert.Equal(t, 1, model.calls())
			assert.True(t, state.UserInputNeeded)
			assert.Empty(t, judge.prompts)
		})
	}
}

func TestGraph_ColdStartNeverRetriesFareSearch(t *testing.T) {
	var searches int
	fares := stubTool(tools.FareSearchToolName, tools.ColdStartWarning)
	inner := fares.Handler
	fares.Handler = func(ctx context.Context, args map[string]any) (string, error) {
		searches++
		return inner(ctx, args)
	}

	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("", fareCall("call_1")),
		domain.AssistantMessage("", fareCall("call_2")),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{{Feedback: "You did not list any flights."}}}

	var transitions []Node
	hooks := Hooks{OnNodeLeave: func(_ context.Context, e NodeEvent) { transitions = append(transitions, e.Next) }}

	state := newTurn("vuelos MAD LON")
	reply, err := newTestGraph(model, judge, tools.NewRegistry(fares), WithHooks(hooks)).
		Run(context.Background(), state, nil)
	require.NoError(t, err)

	assert.Equal(t, ColdStartStopMessage, reply)
	assert.Equal(t, 1, searches)
	assert.Equal(t, 1, model.calls())
	assert.Empty(t, judge.prompts)
	assert.True(t, state.UserInputNeeded)
	assert.False(t, state.SuccessCriteriaMet)
	assert.Equal(t, []Node{NodeTools, NodeWorker, NodeEnd}, transitions)
}

func TestGraph_CriteriaMetEndsEvenWhenInputNeeded(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("FR502 at 39.99 EUR. " + EmailOffer),
		domain.AssistantMessage("unused"),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{
		{Feedback: "Done, waiting on the email answer.", SuccessCriteriaMet: true, UserInputNeeded: true},
		{Feedback: "should not be consulted"},
	}}

	state := newTurn("vuelos MAD LON")
	reply, err := newTestGraph(model, judge, tools.NewRegistry()).Run(context.Background(), state, nil)
	require.NoError(t, err)

	assert.Contains(t, reply, "FR502")
	assert.Equal(t, 1, model.calls())
	assert.Len(t, judge.prompts, 1)
	assert.Equal(t, 1, state.Cycles)
	assert.True(t, state.SuccessCriteriaMet)
	assert.True(t, state.UserInputNeeded)
}

func TestGraph_FlightDataMentioning502IsNotColdStart(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("", fareCall("call_1")),
		domain.AssistantMessage("FR502 found. " + EmailOffer),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{approve()}}
	registry := tools.NewRegistry(stubTool(tools.FareSearchToolName, faresJSON))

	reply, err := newTestGraph(model, judge, registry).Run(context.Background(), newTurn("vuelos"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls())
	assert.NotEqual(t, ColdStartStopMessage, reply)
}

func TestGraph_MissingEmailCredentials(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("", domain.ToolCall{
			ID:   "call_mail",
			Name: tools.EmailToolName,
			Arguments: map[string]any{
				"subject":   "Flight Summary: MAD to LON",
				"body":      "FR502 39.99 EUR",
				"recipient": "traveler@example.com",
			},
		}),
		domain.AssistantMessage("I could not send the email."),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{{Feedback: "ask later", UserInputNeeded: true}}}
	registry := tools.NewRegistry(tools.NewEmail(tools.EmailSettings{}, nil).Tool())

	state := newTurn("yes, send it to traveler@example.com")
	_, err := newTestGraph(model, judge, registry).Run(context.Background(), state, nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(state.Messages), 3)
	toolMsg := state.Messages[2]
	assert.Equal(t, domain.RoleTool, toolMsg.Role)
	assert.Equal(t, tools.MissingCredentialsMessage, toolMsg.Content)
}

func TestGraph_UnknownToolIsObservedInBand(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("", domain.ToolCall{ID: "c1", Name: "book_hotel"}),
		domain.AssistantMessage("I can only search flights."),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{approve()}}

	state := newTurn("book a hotel")
	_, err := newTestGraph(model, judge, tools.NewRegistry()).Run(context.Background(), state, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.RoleTool, state.Messages[2].Role)
	assert.True(t, strings.HasPrefix(state.Messages[2].Content, `{"error"`))
}

func TestGraph_CycleBoundForcesUserInput(t *testing.T) {
	model := modelFunc(func(context.Context, []domain.Message) (domain.Message, error) {
		return domain.AssistantMessage("still trying"), nil
	})
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{{Feedback: "not yet"}}}

	state := newTurn("vuelos")
	reply, err := newTestGraph(model, judge, tools.NewRegistry(), WithMaxEvaluatorCycles(3)).
		Run(context.Background(), state, nil)
	require.NoError(t, err)

	assert.Equal(t, "still trying", reply)
	assert.Equal(t, 3, state.Cycles)
	assert.True(t, state.UserInputNeeded)
	assert.False(t, state.SuccessCriteriaMet)
	assert.Len(t, judge.prompts, 3)
}

func TestGraph_CheckpointFailureAborts(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{domain.AssistantMessage("hi")}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{approve()}}
	boom := errors.New("disk full")

	_, err := newTestGraph(model, judge, tools.NewRegistry()).Run(context.Background(), newTurn("hola"),
		func(context.Context, *domain.ConversationState) error { return boom })

	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "checkpoint after worker")
	assert.Empty(t, judge.prompts)
}

func TestGraph_ModelErrorsPropagate(t *testing.T) {
	model := &scriptedModel{err: errors.New("provider unavailable")}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{approve()}}

	_, err := newTestGraph(model, judge, tools.NewRegistry()).Run(context.Background(), newTurn("hola"), nil)
	assert.ErrorContains(t, err, "worker model: provider unavailable")

	okModel := &scriptedModel{replies: []domain.Message{domain.AssistantMessage("hi")}}
	badJudge := &scriptedJudge{err: errors.New("malformed verdict")}
	_, err = newTestGraph(okModel, badJudge, tools.NewRegistry()).Run(context.Background(), newTurn("hola"), nil)
	assert.ErrorContains(t, err, "evaluator model: malformed verdict")
}

func TestGraph_CanceledContext(t *testing.T) {
	model := &scriptedModel{replies: []domain.Message{domain.AssistantMessage("hi")}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{approve()}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGraph(model, judge, tools.NewRegistry()).Run(ctx, newTurn("hola"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, model.calls())
}

func TestGraph_MetricsHooks(t *testing.T) {
	metrics := NewMetrics()
	model := &scriptedModel{replies: []domain.Message{
		domain.AssistantMessage("", fareCall("call_1")),
		domain.AssistantMessage("done"),
		domain.AssistantMessage("done, " + EmailOffer),
	}}
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{{Feedback: "offer email"}, approve()}}
	registry := tools.NewRegistry(stubTool(tools.FareSearchToolName, faresJSON))

	var transitions []Node
	hooks := Hooks{OnNodeLeave: func(_ context.Context, e NodeEvent) { transitions = append(transitions, e.Next) }}

	_, err := newTestGraph(model, judge, registry, WithHooks(metrics.Hooks()), WithHooks(hooks)).
		Run(context.Background(), newTurn("vuelos"), nil)
	require.NoError(t, err)

	assert.Equal(t, []Node{NodeTools, NodeWorker, NodeEvaluator, NodeWorker, NodeEvaluator, NodeEnd}, transitions)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.nodeVisits.WithLabelValues(string(NodeWorker))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.nodeVisits.WithLabelValues(string(NodeTools))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.toolCalls.WithLabelValues(tools.FareSearchToolName, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.verdicts.WithLabelValues("retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.verdicts.WithLabelValues("met")))
}

func TestWorker_PromptCarriesSingleFreshSystemMessage(t *testing.T) {
	w := NewWorker(&scriptedModel{}, nil)
	w.now = func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }

	state := newTurn("hola")
	state.Messages = append([]domain.Message{domain.SystemMessage("stale prompt")}, state.Messages...)
	state.SuccessCriteria = "Find the cheapest fare."

	prompt := w.Prompt(state)

	require.Len(t, prompt, 2)
	assert.Equal(t, domain.RoleSystem, prompt[0].Role)
	assert.Contains(t, prompt[0].Content, "The current date is 2025-06-01 09:30:00.")
	assert.Contains(t, prompt[0].Content, "Find the cheapest fare.")
	assert.Contains(t, prompt[0].Content, tools.FareSearchToolName)
	assert.Contains(t, prompt[0].Content, tools.EmailToolName)
	assert.NotContains(t, prompt[0].Content, "stale prompt")
	assert.Equal(t, domain.RoleUser, prompt[1].Role)
}

func TestFareColdStart_OnlyTrailingResults(t *testing.T) {
	cold := domain.ToolResultMessage(domain.ToolResult{CallID: "c1", Name: tools.FareSearchToolName, Content: tools.ColdStartWarning})

	assert.True(t, fareColdStart([]domain.Message{domain.HumanMessage("hi"), cold}))
	assert.False(t, fareColdStart([]domain.Message{cold, domain.AssistantMessage("retrying later"), domain.HumanMessage("again")}))

	email := domain.ToolResultMessage(domain.ToolResult{CallID: "c2", Name: tools.EmailToolName, Content: "reiniciando"})
	assert.False(t, fareColdStart([]domain.Message{email}))
}

func TestEvaluator_PromptAndTranscript(t *testing.T) {
	judge := &scriptedJudge{verdicts: []domain.EvaluatorJudgment{approve()}}
	state := newTurn("vuelos MAD LON")
	state.Append(
		domain.SystemMessage("hidden instructions"),
		domain.AssistantMessage("", fareCall("c1")),
		domain.ToolResultMessage(domain.ToolResult{CallID: "c1", Name: tools.FareSearchToolName, Content: faresJSON}),
		domain.AssistantMessage("FR502 at 39.99 EUR"),
	)

	judgment, err := NewEvaluator(judge).Evaluate(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, judgment.SuccessCriteriaMet)

	require.Len(t, judge.prompts, 1)
	prompt := judge.prompts[0]
	require.Len(t, prompt, 2)
	assert.Equal(t, evaluatorSystemPrompt, prompt[0].Content)

	user := prompt[1].Content
	assert.Contains(t, user, "User: vuelos MAD LON\n")
	assert.Contains(t, user, "Assistant: [Action/Tool Call]\n")
	assert.Contains(t, user, "Last Assistant Response:\nFR502 at 39.99 EUR")
	assert.Contains(t, user, domain.DefaultSuccessCriteria)
	assert.NotContains(t, user, "hidden instructions")
	assert.NotContains(t, user, "39.99,")
}

func TestFormatTranscript(t *testing.T) {
	got := formatTranscript([]domain.Message{
		domain.SystemMessage("sys"),
		domain.HumanMessage("hi"),
		domain.AssistantMessage("", domain.ToolCall{ID: "1", Name: tools.FareSearchToolName}),
		domain.ToolResultMessage(domain.ToolResult{CallID: "1", Content: "{}"}),
		domain.AssistantMessage("hello"),
	})

	assert.Equal(t, "Conversation history:\n\nUser: hi\nAssistant: [Action/Tool Call]\nAssistant: hello\n", got)
}
