package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/logging"
	"github.com/ashureev/flight-assistant/internal/session"
	"github.com/ashureev/flight-assistant/internal/store"
)

// ErrEmptyMessage is returned when a turn carries no user text.
var ErrEmptyMessage = errors.New("message is required")

// Service is the session boundary: one user utterance in, one reply out.
type Service struct {
	sessions        *session.Manager
	graph           *Graph
	metrics         *Metrics
	successCriteria string
	logger          *slog.Logger
	now             func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSuccessCriteria overrides the criterion applied at the start of each turn.
func WithSuccessCriteria(criteria string) ServiceOption {
	return func(s *Service) {
		if criteria != "" {
			s.successCriteria = criteria
		}
	}
}

// WithMetrics records turn durations.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates the chat service.
func NewService(sessions *session.Manager, graph *Graph, opts ...ServiceOption) *Service {
	s := &Service{
		sessions:        sessions,
		graph:           graph,
		successCriteria: domain.DefaultSuccessCriteria,
		logger:          logging.NewNop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat runs one turn on threadID and returns the final assistant text.
// Turns on the same thread are serialized; distinct threads run concurrently.
func (s *Service) Chat(ctx context.Context, threadID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	if threadID == "" {
		threadID = domain.DefaultThreadID
	}

	start := s.now()
	var reply string
	err := s.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		repo := s.sessions.Store()

		state, err := session.LoadOrNew(ctx, repo, threadID, start)
		if err != nil {
			return err
		}

		state.BeginTurn(message, s.successCriteria)
		if err := repo.Save(ctx, state); err != nil {
			return fmt.Errorf("checkpoint user input: %w", err)
		}

		reply, err = s.graph.Run(ctx, state, repo.Save)
		return err
	})
	if s.metrics != nil {
		s.metrics.ObserveTurn(s.now().Sub(start))
	}
	if err != nil {
		return "", fmt.Errorf("chat turn on thread %s: %w", threadID, err)
	}

	s.logger.Info("Chat turn completed",
		"thread_id", threadID,
		"duration", s.now().Sub(start),
		"reply_length", len(reply),
	)
	return reply, nil
}

// Conversation returns the persisted state of a thread.
func (s *Service) Conversation(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	return s.sessions.Load(ctx, threadID)
}

// Transcript returns the thread's visible messages, without System entries.
func (s *Service) Transcript(ctx context.Context, threadID string) ([]domain.Message, error) {
	state, err := s.Conversation(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []domain.Message{}, nil
		}
		return nil, err
	}
	return domain.WithoutSystem(state.Messages), nil
}

// Reset discards all persisted state for a thread.
func (s *Service) Reset(ctx context.Context, threadID string) error {
	if err := s.sessions.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("reset thread %s: %w", threadID, err)
	}
	s.logger.Info("Conversation reset", "thread_id", threadID)
	return nil
}

// Ping checks the checkpoint store.
func (s *Service) Ping(ctx context.Context) error {
	return s.sessions.Store().Ping(ctx)
}

// Close releases the checkpoint store.
func (s *Service) Close() error {
	return s.sessions.Store().Close()
}
