package apierr

import (
	"net/http"

	"github.com/mcoot/gameserver/internal/api/response"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Error codes
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternalError    = "INTERNAL_ERROR"
)

// WriteError writes an error response with the given status
func WriteError(w http.ResponseWriter, status int, code, message string) {
	response.JSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message}})
}

// NotFound is the router's handler for unknown paths
func NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, CodeNotFound, "Resource not found")
}

// MethodNotAllowed is the router's handler for known paths with the wrong method
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}

// PanicHandler answers a request whose handler panicked
func PanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, "An internal error occurred")
}
