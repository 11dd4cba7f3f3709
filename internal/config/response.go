package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON body of every error
type ErrorResponse struct {
	Error       string   `json:"error"`
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// SuccessResponse is the JSON body of admin actions
type SuccessResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// RespondJSON writes data as JSON with the given status
func RespondJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError fills in the status text and keeps errors out of shared caches
func writeError(w http.ResponseWriter, statusCode int, body ErrorResponse) {
	body.Error = http.StatusText(statusCode)
	w.Header().Set("Cache-Control", "no-store")
	RespondJSON(w, statusCode, body)
}

// RespondError writes an error with any status. Server errors are logged at Error,
// the rest at Warn.
func RespondError(w http.ResponseWriter, statusCode int, message string, details string, logger *slog.Logger) {
	if logger != nil {
		level := slog.LevelWarn
		if statusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(context.Background(), level, "responding with error",
			"status_code", statusCode,
			"message", message,
			"details", details,
		)
	}
	writeError(w, statusCode, ErrorResponse{Message: message, Details: details})
}

// RespondSuccess writes a SuccessResponse
func RespondSuccess(w http.ResponseWriter, statusCode int, message string, data map[string]any) {
	RespondJSON(w, statusCode, SuccessResponse{Success: true, Message: message, Data: data})
}

// RespondInternalError logs err and hides it from the client
func RespondInternalError(w http.ResponseWriter, err error, logger *slog.Logger) {
	if logger != nil {
		logger.Error("internal server error", "error", err)
	}
	writeError(w, http.StatusInternalServerError, ErrorResponse{Message: "An unexpected error occurred"})
}

func RespondBadRequest(w http.ResponseWriter, message string, details string) {
	writeError(w, http.StatusBadRequest, ErrorResponse{Message: message, Details: details})
}

// RespondUnknownValue is a 400 carrying close matches for a value that was not recognised
func RespondUnknownValue(w http.ResponseWriter, message string, suggestions []string) {
	writeError(w, http.StatusBadRequest, ErrorResponse{Message: message, Suggestions: suggestions})
}

func RespondNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrorResponse{Message: message})
}

func RespondUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrorResponse{Message: message})
}

// RespondServiceUnavailable is used while the dataset is missing
func RespondServiceUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrorResponse{Message: message})
}
