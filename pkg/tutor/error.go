// Package tutor provides the wire types and HTTP client for the Tutor
// Service: streaming and buffered chat, conversation history, student
// records, and study reports.
package tutor

import "fmt"

// ErrorResponse represents an error body from the Tutor Service.
type ErrorResponse struct {
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// APIError is returned when the service answers with a non-success status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tutor service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("tutor service returned %d: %s", e.StatusCode, e.Body)
}
