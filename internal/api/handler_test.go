//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, "message is required")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["detail"] != "message is required" {
		t.Errorf("Expected detail, got %v", got)
	}
}

func TestHealthIsIdempotent(t *testing.T) {
	var first string
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		Health(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		body := w.Body.String()
		var got HealthResponse
		if err := json.Unmarshal([]byte(body), &got); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if got.Status != "online" || got.Service != "Flight Assistant AI" {
			t.Fatalf("Unexpected payload: %+v", got)
		}
		if i == 0 {
			first = body
		} else if body != first {
			t.Fatalf("Health payload changed between calls")
		}
	}
}
