// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the error body returned by every endpoint
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteAPIError writes a structured error response
func WriteAPIError(w http.ResponseWriter, status int, apiErr APIError) {
	WriteJSON(w, status, apiErr)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteAPIError(w, status, APIError{Error: message})
}

// WriteValidationError writes a 400 with field-level details
func WriteValidationError(w http.ResponseWriter, details any) {
	WriteAPIError(w, http.StatusBadRequest, APIError{
		Error:   "Validation failed",
		Message: "Please check your input data",
		Details: details,
	})
}

// WriteInternalError writes an internal server error response (500 Internal Server Error).
// The underlying cause is never exposed.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteAPIError(w, http.StatusInternalServerError, APIError{
		Error:   message,
		Message: "An unexpected error occurred",
	})
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteAPIError(w, http.StatusTooManyRequests, APIError{
		Error:   "Too many requests",
		Message: message,
		Code:    "RATE_LIMITED",
	})
}
