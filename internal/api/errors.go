package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/mediaforge-api/internal/api/shared"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/service/auth"
	"github.com/phrazzld/mediaforge-api/internal/store"
	"github.com/phrazzld/mediaforge-api/internal/task"
)

// capacityRetryAfter is the Retry-After hint sent with capacity rejections.
const capacityRetryAfter = 30

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, task.ErrTaskNotFound),
		store.IsNotFoundError(err):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, task.ErrAlreadyTerminal),
		store.IsDuplicateError(err):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, task.ErrUnknownKind),
		errors.Is(err, task.ErrInvalidMetadata),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrCapacity):
		return http.StatusTooManyRequests

	case errors.Is(err, task.ErrEngineStopped):
		return http.StatusServiceUnavailable

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
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return "Invalid token"

	case errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	case errors.Is(err, task.ErrTaskNotFound),
		store.IsNotFoundError(err):
		return "Task not found"

	case errors.Is(err, task.ErrAlreadyTerminal):
		return "Task already finished"

	case errors.Is(err, task.ErrCapacity):
		return "Task capacity reached, retry later"

	case errors.Is(err, task.ErrUnknownKind):
		return "Unknown task kind"

	case errors.Is(err, task.ErrInvalidMetadata):
		// Metadata errors name the offending field, never internal state.
		return strings.TrimPrefix(err.Error(), task.ErrInvalidMetadata.Error()+": ")

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request"

	case errors.Is(err, task.ErrEngineStopped):
		return "Service is shutting down"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a message naming the
// first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url":
		return "must be a URL"
	case "min", "gte":
		return "too small"
	case "max", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. defaultMsg
// replaces the generic message for unclassified errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}

	var opts []shared.ResponseOption
	if status == http.StatusTooManyRequests {
		opts = append(opts, shared.WithRetryAfter(capacityRetryAfter))
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}
