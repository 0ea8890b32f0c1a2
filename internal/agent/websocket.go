package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/flight-assistant/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const wsWriteTimeout = 10 * time.Second

// HandleWebSocket handles GET /ws/chat. The connection is bound to the
// thread resolved from X-Thread-ID or ?thread_id= and replaces any older
// connection on the same thread.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	threadID := identity.ThreadIDFromContext(r.Context())
	clientIP := identity.IPFromRequest(r)
	slog.Info("WebSocket connection request", "thread_id", threadID, "ip", clientIP)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "thread_id", threadID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "thread_id", threadID)
		}
	}()

	h.sessions.Register(threadID, ws)
	defer h.sessions.Unregister(threadID, ws)

	h.readLoop(r.Context(), ws, threadID, clientIP, chiMiddleware.GetReqID(r.Context()))
	slog.Info("Chat connection ended", "thread_id", threadID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, threadID, clientIP, reqID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "thread_id", threadID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "thread_id", threadID)
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeFrame(ctx, ws, wsOutbound{Type: frameError, Detail: "invalid frame"})
			continue
		}

		switch msg.Type {
		case framePing:
			h.writeFrame(ctx, ws, wsOutbound{Type: framePong})
		case frameChat:
			h.handleChatFrame(ctx, ws, threadID, clientIP, reqID, msg)
		default:
			h.writeFrame(ctx, ws, wsOutbound{Type: frameError, Detail: "unknown frame type"})
		}
	}
}

func (h *Handler) handleChatFrame(ctx context.Context, ws *websocket.Conn, threadID, clientIP, reqID string, msg wsInbound) {
	if requested := msg.ThreadID; requested != "" || msg.ThreadIDAlt != "" {
		if requested == "" {
			requested = msg.ThreadIDAlt
		}
		if requested != threadID {
			h.writeFrame(ctx, ws, wsOutbound{Type: frameError, Detail: "thread_id does not match connection", ThreadID: threadID})
			return
		}
	}

	if !h.rateLimiter.Allow(clientIP) {
		h.writeFrame(ctx, ws, wsOutbound{Type: frameError, Detail: "rate limit exceeded", ThreadID: threadID})
		return
	}

	h.logUserMessage("chat_ws", threadID, clientIP, msg.Message, reqID)

	reply, err := h.agent.Chat(ctx, threadID, msg.Message)
	if err != nil {
		if !errors.Is(err, ErrEmptyMessage) {
			slog.Error("Chat turn failed", "thread_id", threadID, "error", err)
		}
		h.logAssistantMessage("chat_ws", threadID, clientIP, "", err.Error(), reqID)
		h.writeFrame(ctx, ws, wsOutbound{Type: frameError, Detail: err.Error(), ThreadID: threadID})
		return
	}

	h.logAssistantMessage("chat_ws", threadID, clientIP, reply, "", reqID)
	h.writeFrame(ctx, ws, wsOutbound{Type: frameResponse, Response: reply, Status: StatusSuccess, ThreadID: threadID})
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, frame wsOutbound) {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, ws, frame); err != nil {
		slog.Debug("Failed to write websocket frame", "type", frame.Type, "error", err)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}
