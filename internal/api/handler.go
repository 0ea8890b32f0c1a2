// Package api provides shared HTTP helpers and the liveness endpoint.
package api

import (
	"encoding/json"
	"net/http"
)

// ServiceName is reported by the liveness endpoint.
const ServiceName = "Flight Assistant AI"

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response as {"detail": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health reports that the process is up. It touches no conversation state.
func Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{Status: "online", Service: ServiceName})
}
