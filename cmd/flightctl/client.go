package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient is a minimal HTTP client for the chat endpoints.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id"`
}

type chatResponse struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Chat sends one user turn and returns the assistant reply.
func (c *apiClient) Chat(ctx context.Context, threadID, message string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: message, ThreadID: threadID})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Reset clears a thread on the server.
func (c *apiClient) Reset(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodDelete, "/chat/"+url.PathEscape(threadID), nil, nil)
}

// Health returns the liveness payload of GET /.
func (c *apiClient) Health(ctx context.Context) (healthResponse, error) {
	var out healthResponse
	err := c.do(ctx, http.MethodGet, "/", nil, &out)
	return out, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr errorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Detail != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Detail)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
