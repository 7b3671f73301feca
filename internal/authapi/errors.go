package authapi

import (
	"errors"
	"fmt"
	"net/http"
)

const genericMessage = "Unexpected error, please try again"

// Error is a non-success answer of the auth API
type Error struct {
	StatusCode int

	// Message as the server wrote it, may be empty
	ServerMessage string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth api: status %d: %s", e.StatusCode, e.ServerMessage)
}

// UserMessage maps the status to text safe to show to a person
func (e *Error) UserMessage() string {
	switch e.StatusCode {
	case http.StatusBadRequest:
		if e.ServerMessage != "" {
			return e.ServerMessage
		}
		return "Invalid request"
	case http.StatusUnauthorized:
		return "Invalid credentials"
	case http.StatusForbidden:
		return "Access denied"
	case http.StatusNotFound:
		return "Resource not found"
	case http.StatusInternalServerError:
		return "Server error, please try again later"
	default:
		return genericMessage
	}
}

// UserMessage returns a human readable message for any error returned by the client
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return genericMessage
}
