package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seen = append(seen, req.ThreadID+":"+req.Message)
		if req.Message == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"model unavailable"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Response: "**" + req.Message + "**", Status: "success"})
	})
	mux.HandleFunc("DELETE /chat/{thread}", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "reset:"+r.PathValue("thread"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "online", Service: "Flight Assistant AI"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestAPIClient_ChatAndErrors(t *testing.T) {
	srv, _ := fakeServer(t)
	client := newAPIClient(srv.URL+"/", time.Second)

	reply, err := client.Chat(context.Background(), "t-1", "hola")
	require.NoError(t, err)
	assert.Equal(t, "**hola**", reply)

	_, err = client.Chat(context.Background(), "t-1", "fail")
	assert.EqualError(t, err, "server returned 500: model unavailable")

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "online", health.Status)
}

func TestRunREPL(t *testing.T) {
	srv, seen := fakeServer(t)
	client := newAPIClient(srv.URL, time.Second)

	in := strings.NewReader("hola\n\n/reset\nfail\nexit\nignored\n")
	var out bytes.Buffer
	plain := func(s string) string { return s + "\n" }

	require.NoError(t, runREPL(context.Background(), client, "t-1", in, &out, plain))

	assert.Equal(t, []string{"t-1:hola", "reset:t-1", "t-1:fail"}, *seen)
	assert.Contains(t, out.String(), "**hola**")
	assert.Contains(t, out.String(), "Conversation cleared.")
	assert.Contains(t, out.String(), "Error: server returned 500: model unavailable")
	assert.Contains(t, out.String(), "Bye!")
}
