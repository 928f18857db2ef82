// Package errors carries the JSON error envelope for the HTTP surface.
//
// Every error leaves the API as:
//
//	{"error": {"code": "NOT_FOUND", "message": "..."}}
package errors

import (
	"encoding/json"
	"net/http"
)

// Error codes used by the HTTP surface.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeCacheBusy        = "CACHE_BUSY"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// HTTPError is the inner error object.
type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HTTPErrorResponse is the envelope written on every error response.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// statusByCode maps envelope codes to HTTP statuses.
var statusByCode = map[string]int{
	CodeNotFound:         http.StatusNotFound,
	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeInvalidArgument:  http.StatusBadRequest,
	CodeCacheBusy:        http.StatusServiceUnavailable,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeInternal:         http.StatusInternalServerError,
}

// RespondWithError writes the envelope for the given code. Unknown codes
// are treated as internal errors.
func RespondWithError(w http.ResponseWriter, code, message string) {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		code = CodeInternal
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPError{Code: code, Message: message}})
}

// NotFoundHandler is the router's fallback for unknown paths.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, CodeNotFound, "no such endpoint: "+r.URL.Path)
}

// MethodNotAllowedHandler is the router's fallback for wrong methods.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	RespondWithError(w, CodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
}
