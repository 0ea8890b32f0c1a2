package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultEndpoint = "/chat/completions"
	defaultTimeout  = 60 * time.Second
	maxResponseSize = 2 << 20
)

// Config configures an OpenAI chat-completions client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	HTTPClient  *http.Client
}

// OpenAI is a chat-completions client implementing Model and StructuredModel.
type OpenAI struct {
	apiKey      string
	model       string
	endpointURL string
	temperature float64
	httpClient  *http.Client
}

var (
	_ Model           = (*OpenAI)(nil)
	_ StructuredModel = (*OpenAI)(nil)
)

// NewOpenAI validates cfg and returns a client.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new openai client: api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("new openai client: model is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &OpenAI{
		apiKey:      apiKey,
		model:       model,
		endpointURL: strings.TrimRight(baseURL, "/") + defaultEndpoint,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
	}, nil
}

// Generate returns the next assistant message with any tool invocation requests.
func (c *OpenAI) Generate(ctx context.Context, messages []domain.Message, tools []ToolDefinition) (domain.Message, error) {
	request, err := c.buildRequest(messages, tools)
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider request: %w", err)
	}

	reply, err := c.do(ctx, request)
	if err != nil {
		return domain.Message{}, err
	}

	message, err := toDomainMessage(reply)
	if err != nil {
		return domain.Message{}, fmt.Errorf("provider response decode: %w", err)
	}
	return message, nil
}

// GenerateStructured asks for a strict JSON-schema response reflected from out and decodes it.
func (c *OpenAI) GenerateStructured(ctx context.Context, messages []domain.Message, name string, out any) error {
	schema, err := SchemaFor(out)
	if err != nil {
		return fmt.Errorf("structured output schema: %w", err)
	}

	request, err := c.buildRequest(messages, nil)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	request.ResponseFormat = &responseFormat{
		Type: "json_schema",
		JSONSchema: &jsonSchemaFormat{
			Name:   name,
			Strict: true,
			Schema: schema,
		},
	}

	reply, err := c.do(ctx, request)
	if err != nil {
		return err
	}
	if reply.Refusal != "" {
		return fmt.Errorf("structured output refused: %s", reply.Refusal)
	}
	if err := json.Unmarshal([]byte(reply.Content), out); err != nil {
		return fmt.Errorf("structured output decode: %w", err)
	}
	return nil
}

func (c *OpenAI) do(ctx context.Context, request chatCompletionRequest) (chatMessage, error) {
	encoded, err := json.Marshal(request)
	if err != nil {
		return chatMessage{}, fmt.Errorf("provider request encode: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(encoded))
	if err != nil {
		return chatMessage{}, fmt.Errorf("provider request build: %w", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return chatMessage{}, fmt.Errorf("provider request execute: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return chatMessage{}, fmt.Errorf("provider response read: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return chatMessage{}, fmt.Errorf("provider response status=%d body=%s", response.StatusCode, string(body))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return chatMessage{}, fmt.Errorf("provider response decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return chatMessage{}, ErrNoChoices
	}
	return parsed.Choices[0].Message, nil
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Tools          []chatTool      `json:"tools,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatCompletionResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Refusal    string         `json:"refusal,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function chatToolCallFunction `json:"function"`
}

type chatToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (c *OpenAI) buildRequest(messages []domain.Message, tools []ToolDefinition) (chatCompletionRequest, error) {
	if err := checkToolObservations(messages); err != nil {
		return chatCompletionRequest{}, err
	}

	converted := make([]chatMessage, len(messages))
	for i := range messages {
		msg, err := toChatMessage(messages[i])
		if err != nil {
			return chatCompletionRequest{}, err
		}
		converted[i] = msg
	}

	chatTools := make([]chatTool, len(tools))
	for i := range tools {
		chatTools[i] = chatTool{
			Type: "function",
			Function: chatToolFunction{
				Name:        tools[i].Name,
				Description: tools[i].Description,
				Parameters:  tools[i].InputSchema,
			},
		}
	}

	temperature := c.temperature
	return chatCompletionRequest{
		Model:       c.model,
		Messages:    converted,
		Tools:       chatTools,
		Temperature: &temperature,
	}, nil
}

// checkToolObservations rejects tool results that answer no earlier request,
// which the provider would refuse anyway.
func checkToolObservations(messages []domain.Message) error {
	requested := make(map[string]struct{}, len(messages))
	for i, m := range messages {
		switch m.Role {
		case domain.RoleAssistant:
			for _, call := range m.ToolCalls {
				if call.ID != "" {
					requested[call.ID] = struct{}{}
				}
			}
		case domain.RoleTool:
			id := strings.TrimSpace(m.ToolCallID)
			if id == "" {
				return fmt.Errorf("tool message at index %d missing tool_call_id", i)
			}
			if _, ok := requested[id]; !ok {
				return fmt.Errorf("tool message at index %d references unknown tool_call_id %q", i, id)
			}
		}
	}
	return nil
}

func toChatMessage(message domain.Message) (chatMessage, error) {
	role, err := toProviderRole(message.Role)
	if err != nil {
		return chatMessage{}, err
	}

	var toolCalls []chatToolCall
	for _, call := range message.ToolCalls {
		arguments := "{}"
		if len(call.Arguments) > 0 {
			encoded, err := json.Marshal(call.Arguments)
			if err != nil {
				return chatMessage{}, fmt.Errorf("encode tool call arguments: %w", err)
			}
			arguments = string(encoded)
		}
		toolCalls = append(toolCalls, chatToolCall{
			ID:   call.ID,
			Type: "function",
			Function: chatToolCallFunction{
				Name:      call.Name,
				Arguments: arguments,
			},
		})
	}

	return chatMessage{
		Role:       role,
		Content:    message.Content,
		Name:       message.Name,
		ToolCallID: message.ToolCallID,
		ToolCalls:  toolCalls,
	}, nil
}

func toProviderRole(role domain.Role) (string, error) {
	switch role {
	case domain.RoleSystem:
		return "system", nil
	case domain.RoleUser:
		return "user", nil
	case domain.RoleAssistant:
		return "assistant", nil
	case domain.RoleTool:
		return "tool", nil
	default:
		return "", fmt.Errorf("unsupported message role %q", role)
	}
}

func toDomainMessage(message chatMessage) (domain.Message, error) {
	if message.Role != "assistant" {
		return domain.Message{}, fmt.Errorf("expected assistant message role, got %q", message.Role)
	}

	var calls []domain.ToolCall
	for _, call := range message.ToolCalls {
		arguments := map[string]any{}
		if strings.TrimSpace(call.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &arguments); err != nil {
				return domain.Message{}, fmt.Errorf("decode tool call arguments for %q: %w", call.Function.Name, err)
			}
		}
		calls = append(calls, domain.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: arguments,
		})
	}

	return domain.AssistantMessage(message.Content, calls...), nil
}
