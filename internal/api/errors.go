package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/overseer/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// The supervisor is not accepting work (before Start or during shutdown).
	case errors.Is(err, task.ErrNotStarted):
		return http.StatusServiceUnavailable

	// Registry at capacity: the caller should back off and retry.
	case errors.Is(err, task.ErrQueueOverflow):
		return http.StatusTooManyRequests

	// Deadline errors surfaced synchronously (e.g. gather of a cancelled
	// request context).
	case errors.Is(err, task.ErrTimeout):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, task.ErrNotStarted):
		return "Task supervisor is not running"

	case errors.Is(err, task.ErrQueueOverflow):
		return "Too many tasks outstanding, try again later"

	case errors.Is(err, task.ErrTimeout):
		return "Operation timed out"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'SubmitTaskRequest.ID' Error:Field validation
	// for 'ID' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gte":
		return "must not be negative"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
