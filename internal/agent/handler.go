package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/flight-assistant/internal/api"
	"github.com/ashureev/flight-assistant/internal/config"
	"github.com/ashureev/flight-assistant/internal/domain"
	"github.com/ashureev/flight-assistant/internal/identity"
	"github.com/ashureev/flight-assistant/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Handler serves the chat endpoints.
type Handler struct {
	agent          *Service
	rateLimiter    *RateLimiter
	sessions       *SessionManager
	log            ConversationLogger
	maxBodySize    int64
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a chat handler. A nil conversation logger disables conversation logging.
func NewHandler(agentService *Service, cfg *config.Config, conversationLogger ConversationLogger) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}

	rateLimitRequests := 30
	rateLimitWindow := time.Minute
	var origins []string
	isDev := false
	if cfg != nil {
		rateLimitRequests = cfg.RateLimit.RequestsPerWindow
		rateLimitWindow = cfg.RateLimit.WindowDuration
		origins = cfg.AllowedOrigins
		isDev = cfg.IsDevelopment()
	}

	return &Handler{
		agent:          agentService,
		rateLimiter:    NewRateLimiter(rateLimitRequests, rateLimitWindow),
		sessions:       NewSessionManager(),
		log:            conversationLogger,
		maxBodySize:    defaultMaxRequestBodySize,
		allowedOrigins: origins,
		isDev:          isDev,
	}
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
	r.Get("/chat/{threadID}", h.HandleTranscript)
	r.Delete("/chat/{threadID}", h.HandleReset)
	r.Get("/ws/chat", h.HandleWebSocket)
}

// HandleChat handles POST /chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	clientIP := identity.IPFromRequest(r)
	if !h.rateLimiter.Allow(clientIP) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	threadID := req.Thread()
	if threadID == "" {
		threadID = identity.ThreadIDFromContext(r.Context())
	} else if !identity.ValidThreadID(threadID) {
		api.Error(w, http.StatusBadRequest, "invalid thread_id")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Chat request",
		"thread_id", threadID,
		"request_id", reqID,
		"message_length", len(req.Message),
	)
	h.logUserMessage("chat_http", threadID, clientIP, req.Message, reqID)

	reply, err := h.agent.Chat(r.Context(), threadID, req.Message)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			api.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Chat turn failed", "thread_id", threadID, "request_id", reqID, "error", err)
		h.logAssistantMessage("chat_http", threadID, clientIP, "", err.Error(), reqID)
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logAssistantMessage("chat_http", threadID, clientIP, reply, "", reqID)
	api.JSON(w, http.StatusOK, ChatResponse{Response: reply, Status: StatusSuccess})
}

// HandleTranscript handles GET /chat/{threadID}.
func (h *Handler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if !identity.ValidThreadID(threadID) {
		api.Error(w, http.StatusBadRequest, "invalid thread_id")
		return
	}

	state, err := h.agent.Conversation(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			api.JSON(w, http.StatusOK, TranscriptResponse{ThreadID: threadID, Messages: []domain.Message{}})
			return
		}
		slog.Error("Failed to load conversation", "thread_id", threadID, "error", err)
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.JSON(w, http.StatusOK, TranscriptResponse{
		ThreadID:           threadID,
		Messages:           domain.WithoutSystem(state.Messages),
		SuccessCriteriaMet: state.SuccessCriteriaMet,
		UserInputNeeded:    state.UserInputNeeded,
	})
}

// HandleReset handles DELETE /chat/{threadID}.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if !identity.ValidThreadID(threadID) {
		api.Error(w, http.StatusBadRequest, "invalid thread_id")
		return
	}

	if err := h.agent.Reset(r.Context(), threadID); err != nil {
		slog.Error("Failed to reset conversation", "thread_id", threadID, "error", err)
		api.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.sessions.CloseThread(threadID, "conversation reset")
	w.WriteHeader(http.StatusNoContent)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	h.sessions.CloseAll("server shutting down")
	if h.log != nil {
		if err := h.log.Close(); err != nil {
			slog.Warn("failed to close conversation logger", "error", err)
		}
	}
}

// Sessions returns the live connection registry.
func (h *Handler) Sessions() *SessionManager {
	return h.sessions
}

func (h *Handler) logUserMessage(channel, threadID, clientIP, content, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ThreadID:   threadID,
		ClientIP:   clientIP,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta: map[string]any{
			"request_id": requestID,
		},
	})
}

func (h *Handler) logAssistantMessage(channel, threadID, clientIP, content, errMsg, requestID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ThreadID:   threadID,
		ClientIP:   clientIP,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta: map[string]any{
			"error":      errMsg,
			"request_id": requestID,
		},
	})
}
