package agent

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the live WebSocket connection of each thread.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a thread.
func (m *SessionManager) GetActive(threadID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[threadID]
}

// Count returns the number of live connections.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Register adds a connection for a thread, closing any connection it replaces.
func (m *SessionManager) Register(threadID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[threadID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}

	m.active[threadID] = conn
	slog.Info("Chat connection registered", "thread_id", threadID)
}

// Unregister removes conn if it is still the thread's active connection.
func (m *SessionManager) Unregister(threadID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[threadID]; ok && current == conn {
		delete(m.active, threadID)
		slog.Info("Chat connection unregistered", "thread_id", threadID)
	}
}

// CloseThread terminates the live connection of a thread, if any.
func (m *SessionManager) CloseThread(threadID, reason string) {
	m.mu.Lock()
	conn, ok := m.active[threadID]
	delete(m.active, threadID)
	m.mu.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, reason)
		slog.Info("Chat connection closed", "thread_id", threadID, "reason", reason)
	}
}

// CloseAll terminates every live connection.
func (m *SessionManager) CloseAll(reason string) {
	m.mu.Lock()
	conns := m.active
	m.active = make(map[string]*websocket.Conn)
	m.mu.Unlock()

	for threadID, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, reason)
		slog.Debug("Chat connection closed", "thread_id", threadID, "reason", reason)
	}
}
