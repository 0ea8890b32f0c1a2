package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRecorder(allowed []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(method, "/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestCORS_AllowedOrigin(t *testing.T) {
	rec, called := corsRecorder([]string{"https://frontend-flightassistant.onrender.com"}, http.MethodPost, "https://frontend-flightassistant.onrender.com")

	assert.True(t, called)
	assert.Equal(t, "https://frontend-flightassistant.onrender.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	rec, called := corsRecorder([]string{"https://frontend-flightassistant.onrender.com"}, http.MethodPost, "https://evil.example")

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardWithoutCredentials(t *testing.T) {
	rec, _ := corsRecorder([]string{"*"}, http.MethodGet, "https://any.example")

	assert.Equal(t, "https://any.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	rec, called := corsRecorder([]string{"*"}, http.MethodOptions, "https://any.example")

	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
