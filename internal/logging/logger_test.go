package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONRenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, false)

	logger.Info("tool failed", "error", errors.New("boom"), "tool", "search_flights")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["err"])
	assert.Equal(t, "search_flights", entry["tool"])
	_, hasError := entry["error"]
	assert.False(t, hasError)
}

func TestNewDevelopmentIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug, true)

	logger.Debug("worker step", "thread_id", "abc")

	assert.True(t, strings.Contains(buf.String(), "worker step"))
	assert.True(t, strings.Contains(buf.String(), "thread_id"))
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn, false)

	logger.Info("hidden")

	assert.Empty(t, buf.String())
}
