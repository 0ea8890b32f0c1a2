// Package domain contains core conversation types for the flight assistant.
package domain

import (
	"time"
)

// DefaultThreadID is used when a request does not name a conversation thread.
const DefaultThreadID = "default_user"

// DefaultSuccessCriteria is applied at the start of every user turn.
const DefaultSuccessCriteria = "Answer clearly. Offer email if relevant."

// ConversationState is the persisted state of one conversation thread.
type ConversationState struct {
	ThreadID           string    `json:"thread_id"`
	Messages           []Message `json:"messages"`
	SuccessCriteria    string    `json:"success_criteria"`
	FeedbackOnWork     *string   `json:"feedback_on_work,omitempty"`
	SuccessCriteriaMet bool      `json:"success_criteria_met"`
	UserInputNeeded    bool      `json:"user_input_needed"`
	Cycles             int       `json:"cycles"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// EvaluatorJudgment is the transient verdict of one evaluator pass.
type EvaluatorJudgment struct {
	Feedback           string `json:"feedback" jsonschema_description:"Feedback on the assistant's response"`
	SuccessCriteriaMet bool   `json:"success_criteria_met" jsonschema_description:"True if the success criteria have been met"`
	UserInputNeeded    bool   `json:"user_input_needed" jsonschema_description:"True if more information is needed from the user or the assistant is stuck"`
}

// NewConversationState creates an empty state for a thread.
func NewConversationState(threadID string, now time.Time) *ConversationState {
	return &ConversationState{
		ThreadID:        threadID,
		Messages:        []Message{},
		SuccessCriteria: DefaultSuccessCriteria,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Append merges new messages onto the end of the log. Existing entries are never replaced.
func (s *ConversationState) Append(msgs ...Message) {
	for _, m := range msgs {
		s.Messages = append(s.Messages, CloneMessage(m))
	}
}

// BeginTurn records a user utterance and resets the per-turn control fields.
func (s *ConversationState) BeginTurn(userInput, successCriteria string) {
	if successCriteria == "" {
		successCriteria = DefaultSuccessCriteria
	}
	s.Append(HumanMessage(userInput))
	s.SuccessCriteria = successCriteria
	s.FeedbackOnWork = nil
	s.SuccessCriteriaMet = false
	s.UserInputNeeded = false
	s.Cycles = 0
}

// ApplyJudgment copies an evaluator verdict into the control fields.
func (s *ConversationState) ApplyJudgment(j EvaluatorJudgment) {
	feedback := j.Feedback
	s.FeedbackOnWork = &feedback
	s.SuccessCriteriaMet = j.SuccessCriteriaMet
	s.UserInputNeeded = j.UserInputNeeded
	s.Cycles++
}

// Done reports whether either termination flag is set.
func (s *ConversationState) Done() bool {
	return s.SuccessCriteriaMet || s.UserInputNeeded
}

// LastMessage returns the most recent entry, if any.
func (s *ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Feedback returns the last evaluator feedback or an empty string.
func (s *ConversationState) Feedback() string {
	if s.FeedbackOnWork == nil {
		return ""
	}
	return *s.FeedbackOnWork
}

// Clone returns a deep copy of the state.
func (s *ConversationState) Clone() *ConversationState {
	out := *s
	out.Messages = CloneMessages(s.Messages)
	if s.FeedbackOnWork != nil {
		feedback := *s.FeedbackOnWork
		out.FeedbackOnWork = &feedback
	}
	return &out
}

// LastText returns the content of the most recent message, or "" when the log is empty.
func (s *ConversationState) LastText() string {
	last, ok := s.LastMessage()
	if !ok {
		return ""
	}
	return last.Content
}
