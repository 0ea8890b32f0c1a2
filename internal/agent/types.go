// Package agent implements the flight assistant's worker/evaluator loop and its HTTP surface.
package agent

import (
	"github.com/ashureev/flight-assistant/internal/domain"
)

// StatusSuccess is the status reported with every completed turn.
const StatusSuccess = "success"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message     string `json:"message"`
	ThreadID    string `json:"thread_id,omitempty"`
	ThreadIDAlt string `json:"threadId,omitempty"`
}

// Thread returns the thread named by the request, preferring thread_id.
func (r ChatRequest) Thread() string {
	if r.ThreadID != "" {
		return r.ThreadID
	}
	return r.ThreadIDAlt
}

// ChatResponse is the body of a successful turn.
type ChatResponse struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

// TranscriptResponse is the body of GET /chat/{threadID}.
type TranscriptResponse struct {
	ThreadID           string           `json:"thread_id"`
	Messages           []domain.Message `json:"messages"`
	SuccessCriteriaMet bool             `json:"success_criteria_met"`
	UserInputNeeded    bool             `json:"user_input_needed"`
}

// WebSocket frame types.
const (
	frameChat     = "chat"
	framePing     = "ping"
	frameResponse = "response"
	frameError    = "error"
	framePong     = "pong"
)

// wsInbound is a client frame on /ws/chat.
type wsInbound struct {
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
	ThreadIDAlt string `json:"threadId,omitempty"`
}

// wsOutbound is a server frame on /ws/chat.
type wsOutbound struct {
	Type     string `json:"type"`
	Response string `json:"response,omitempty"`
	Status   string `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}
