package utils

import (
	"encoding/json"
	"net/http"

	"github.com/brizzai/diary-auth/internal/logger"
	"go.uber.org/zap"
)

// WriteJSON writes a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

// WriteError writes a JSON error response of the form {"error": message}
func WriteError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, map[string]string{"error": message})
}
