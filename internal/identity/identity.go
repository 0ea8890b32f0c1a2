// Package identity resolves which conversation thread a request belongs to.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/ashureev/flight-assistant/internal/domain"
)

const (
	ThreadHeaderName = "X-Thread-ID"
	threadQueryParam = "thread_id"
)

type contextKey int

const threadIDKey contextKey = iota

var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// ThreadIDFromContext extracts the thread ID from the request context.
func ThreadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadIDKey).(string); ok {
		return v
	}
	return domain.DefaultThreadID
}

// WithThreadID returns a context carrying threadID.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDKey, threadID)
}

// ValidThreadID reports whether id may name a thread.
func ValidThreadID(id string) bool {
	return threadIDPattern.MatchString(id)
}

// SanitizeThreadID returns id trimmed, or the default thread when id is empty or invalid.
func SanitizeThreadID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !ValidThreadID(id) {
		return domain.DefaultThreadID
	}
	return id
}

func threadIDFromRequest(r *http.Request) string {
	id := r.Header.Get(ThreadHeaderName)
	if id == "" {
		id = r.URL.Query().Get(threadQueryParam)
	}
	return SanitizeThreadID(id)
}

// Middleware injects the request's thread ID from the X-Thread-ID header or
// thread_id query parameter.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithThreadID(r.Context(), threadIDFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
