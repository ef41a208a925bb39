package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is the wire representation of every API failure. Code always
// matches the HTTP status the error is written with.
type Error struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Details string `json:"details"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// WriteJSON writes the error as JSON to the response writer
func (e *Error) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	json.NewEncoder(w).Encode(e)
}

// NewAuthenticationRequired creates an error for requests without credentials
func NewAuthenticationRequired(message string) *Error {
	if message == "" {
		message = "Token is missing"
	}
	return &Error{
		Message: message,
		Code:    http.StatusUnauthorized,
	}
}

// NewInvalidToken creates an error for credentials the verifier rejected
func NewInvalidToken() *Error {
	return &Error{
		Message: "Invalid token",
		Code:    http.StatusUnauthorized,
	}
}

// NewUpstreamUnavailable creates an error for verifier failures that are
// not an explicit rejection (network errors, malformed responses)
func NewUpstreamUnavailable(details string) *Error {
	return &Error{
		Message: "Internal server error",
		Code:    http.StatusInternalServerError,
		Details: details,
	}
}

// NewValidation creates a bad-request error
func NewValidation(format string, args ...any) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFound creates a not-found error
func NewNotFound(resource string) *Error {
	return &Error{
		Message: fmt.Sprintf("%s not found", resource),
		Code:    http.StatusNotFound,
	}
}

// NewInternal creates a generic internal error
func NewInternal(message string) *Error {
	if message == "" {
		message = "An internal error occurred"
	}
	return &Error{
		Message: message,
		Code:    http.StatusInternalServerError,
	}
}

// HandleError writes err to the response. Non-API errors are masked as a
// generic internal error so upstream details never leak to clients.
func HandleError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*Error); ok {
		apiErr.WriteJSON(w)
		return
	}
	NewInternal("").WriteJSON(w)
}
