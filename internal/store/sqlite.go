package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	sqliteRetryAttempts = 3
	sqliteRetryDelay    = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		thread_id TEXT PRIMARY KEY,
		success_criteria TEXT NOT NULL,
		feedback_on_work TEXT,
		success_criteria_met INTEGER NOT NULL DEFAULT 0,
		user_input_needed INTEGER NOT NULL DEFAULT 0,
		cycles INTEGER NOT NULL DEFAULT 0,
		messages_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load retrieves the conversation state for a thread.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	query := `
		SELECT thread_id, success_criteria, feedback_on_work, success_criteria_met,
		       user_input_needed, cycles, messages_json, created_at, updated_at
		FROM conversations WHERE thread_id = ?`

	row := s.db.QueryRowContext(ctx, query, threadID)

	var state domain.ConversationState
	var feedback sql.NullString
	var messagesJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&state.ThreadID, &state.SuccessCriteria, &feedback,
		&state.SuccessCriteriaMet, &state.UserInputNeeded, &state.Cycles,
		&messagesJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	if feedback.Valid {
		state.FeedbackOnWork = &feedback.String
	}
	if err := json.Unmarshal([]byte(messagesJSON), &state.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", threadID, err)
	}
	state.CreatedAt = time.Unix(createdAt, 0)
	state.UpdatedAt = time.Unix(updatedAt, 0)

	return &state, nil
}

// Save creates or updates the conversation state for a thread.
func (s *SQLiteStore) Save(ctx context.Context, state *domain.ConversationState) error {
	messagesJSON, err := json.Marshal(state.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	query := `
		INSERT INTO conversations (
			thread_id, success_criteria, feedback_on_work, success_criteria_met,
			user_input_needed, cycles, messages_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			success_criteria = excluded.success_criteria,
			feedback_on_work = excluded.feedback_on_work,
			success_criteria_met = excluded.success_criteria_met,
			user_input_needed = excluded.user_input_needed,
			cycles = excluded.cycles,
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`

	var feedback interface{}
	if state.FeedbackOnWork != nil {
		feedback = *state.FeedbackOnWork
	}

	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = shared.RetryOnConflict(ctx, "save conversation", sqliteRetryAttempts, sqliteRetryDelay, func() error {
		_, execErr := s.db.ExecContext(ctx, query,
			state.ThreadID, state.SuccessCriteria, feedback,
			state.SuccessCriteriaMet, state.UserInputNeeded, state.Cycles,
			string(messagesJSON), createdAt.Unix(), time.Now().Unix(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// Delete removes the conversation state for a thread.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := shared.RetryOnConflict(ctx, "delete conversation", sqliteRetryAttempts, sqliteRetryDelay, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE thread_id = ?`, threadID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete conversation %s after %d attempts: %w", threadID, sqliteRetryAttempts, err)
	}
	return nil
}

// CleanupExpired removes conversations older than ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired conversations: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
