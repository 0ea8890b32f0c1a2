package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationState_AppendNeverShrinks(t *testing.T) {
	s := NewConversationState("t-1", time.Now())
	lengths := []int{len(s.Messages)}

	s.BeginTurn("vuelos de Madrid a Londres", "")
	lengths = append(lengths, len(s.Messages))
	s.Append(AssistantMessage("", ToolCall{ID: "c1", Name: "search_flights"}))
	lengths = append(lengths, len(s.Messages))
	s.Append(ToolResultMessage(ToolResult{CallID: "c1", Name: "search_flights", Content: "{}"}))
	lengths = append(lengths, len(s.Messages))
	s.ApplyJudgment(EvaluatorJudgment{Feedback: "ok"})
	lengths = append(lengths, len(s.Messages))

	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1])
	}
	assert.Equal(t, 3, len(s.Messages))
}

func TestConversationState_BeginTurnResetsControlFields(t *testing.T) {
	s := NewConversationState("t-1", time.Now())
	s.ApplyJudgment(EvaluatorJudgment{Feedback: "missing dates", SuccessCriteriaMet: true, UserInputNeeded: true})
	s.SuccessCriteria = "something else"

	s.BeginTurn("hola", "")

	assert.Nil(t, s.FeedbackOnWork)
	assert.False(t, s.SuccessCriteriaMet)
	assert.False(t, s.UserInputNeeded)
	assert.Equal(t, 0, s.Cycles)
	assert.Equal(t, DefaultSuccessCriteria, s.SuccessCriteria)

	last, ok := s.LastMessage()
	require.True(t, ok)
	assert.Equal(t, RoleUser, last.Role)
	assert.Equal(t, "hola", last.Content)
}

func TestConversationState_ApplyJudgmentIsNotAMessage(t *testing.T) {
	s := NewConversationState("t-1", time.Now())
	s.BeginTurn("hola", "")
	before := len(s.Messages)

	s.ApplyJudgment(EvaluatorJudgment{Feedback: "add prices", UserInputNeeded: true})

	assert.Equal(t, before, len(s.Messages))
	assert.Equal(t, "add prices", s.Feedback())
	assert.True(t, s.Done())
	assert.Equal(t, 1, s.Cycles)
}

func TestWithoutSystem(t *testing.T) {
	msgs := []Message{
		SystemMessage("old prompt"),
		HumanMessage("hi"),
		SystemMessage("older prompt"),
		AssistantMessage("hello"),
	}

	got := WithoutSystem(msgs)

	require.Len(t, got, 2)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, RoleAssistant, got[1].Role)
}

func TestConversationState_CloneIsIsolated(t *testing.T) {
	s := NewConversationState("t-1", time.Now())
	s.Append(AssistantMessage("", ToolCall{ID: "c1", Name: "search_flights", Arguments: map[string]any{"origin": "MAD"}}))
	s.ApplyJudgment(EvaluatorJudgment{Feedback: "first"})

	c := s.Clone()
	c.Messages[0].ToolCalls[0].Arguments["origin"] = "BCN"
	*c.FeedbackOnWork = "second"
	c.Append(HumanMessage("extra"))

	assert.Equal(t, "MAD", s.Messages[0].ToolCalls[0].Arguments["origin"])
	assert.Equal(t, "first", s.Feedback())
	assert.Len(t, s.Messages, 1)
}

func TestMessage_HasToolCalls(t *testing.T) {
	assert.False(t, AssistantMessage("text").HasToolCalls())
	assert.True(t, AssistantMessage("", ToolCall{ID: "1", Name: "send_email"}).HasToolCalls())
	assert.False(t, Message{Role: RoleUser, ToolCalls: []ToolCall{{ID: "1"}}}.HasToolCalls())
}
