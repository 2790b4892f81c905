// Package utils holds small HTTP helpers shared by the handlers.
package utils

import (
	"encoding/json"
	"net/http"

	"github.com/brizzai/plaid-link/internal/logger"
	"go.uber.org/zap"
)

// WriteJSON writes data as a 200 JSON response.
func WriteJSON(w http.ResponseWriter, data interface{}) {
	WriteJSONStatus(w, http.StatusOK, data)
}

// WriteJSONStatus writes data as a JSON response with the given status.
func WriteJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to encode JSON response", zap.Error(err))
		WriteError(w, "internal_error", "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

// WriteError writes an {error, error_description} JSON response.
func WriteError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": message,
	}); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}
}
