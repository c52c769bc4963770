package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/leadgen/internal/interfaces"
	"github.com/ternarybob/leadgen/internal/leadgen"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps service errors to HTTP status codes
func WriteServiceError(w http.ResponseWriter, err error) error {
	var verr *leadgen.ValidationError
	switch {
	case errors.Is(err, leadgen.ErrNotFound):
		return WriteError(w, http.StatusNotFound, "job not found")
	case errors.As(err, &verr):
		return WriteError(w, http.StatusBadRequest, verr.Error())
	default:
		return WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// GetListOptions extracts limit/offset pagination from the query string.
// limit defaults to 50 and is capped at 200.
func GetListOptions(r *http.Request) *interfaces.ListOptions {
	opts := &interfaces.ListOptions{Limit: 50}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 200 {
			opts.Limit = parsed
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			opts.Offset = parsed
		}
	}

	return opts
}

// PathSegment returns the path segment at index after trimming slashes.
// Example: PathSegment("/api/agents/leadgen/status/job_1", 4) -> "job_1"
func PathSegment(path string, index int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if index < 0 || index >= len(parts) {
		return ""
	}
	return parts[index]
}
