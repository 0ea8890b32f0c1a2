package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ashureev/flight-assistant/internal/config"
)

// ConversationLogConfig controls per-thread NDJSON conversation logs.
type ConversationLogConfig = config.ConversationLogConfig

// ConversationLogEvent is one line of a conversation log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	ThreadID   string         `json:"thread_id"`
	ClientIP   string         `json:"client_ip,omitempty"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat traffic.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// fileConversationLogger appends events to <dir>/<thread>.ndjson from a single writer goroutine.
type fileConversationLogger struct {
	dir    string
	queue  chan ConversationLogEvent
	logger *slog.Logger

	files map[string]*os.File
	done  chan struct{}
	once  sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewConversationLogger returns a file-backed logger, or a no-op one when disabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &fileConversationLogger{
		dir:    cfg.Dir,
		queue:  make(chan ConversationLogEvent, queueSize),
		logger: logger,
		files:  make(map[string]*os.File),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues an event. Events are dropped when the queue is full.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"thread_id", event.ThreadID,
			"event_type", event.EventType,
		)
	}
}

// Close drains the queue and closes all files.
func (l *fileConversationLogger) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	defer func() {
		for name, f := range l.files {
			if err := f.Close(); err != nil {
				l.logger.Warn("Failed to close conversation log", "file", name, "error", err)
			}
		}
	}()

	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.logger.Warn("Failed to write conversation log", "thread_id", event.ThreadID, "error", err)
		}
	}
}

func (l *fileConversationLogger) write(event ConversationLogEvent) error {
	name := safeFileName(event.ThreadID) + ".ndjson"
	f, ok := l.files[name]
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		l.files[name] = f
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeFileName(threadID string) string {
	name := unsafeFileChars.ReplaceAllString(threadID, "_")
	if name == "" || strings.Trim(name, ".") == "" {
		return "_"
	}
	return name
}

var (
	ansiEscape   = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*\x07`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// cleanForReadability strips terminal escapes and control characters.
func cleanForReadability(raw string) string {
	s := ansiEscape.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = controlChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
