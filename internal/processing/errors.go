package processing

import (
	"errors"
	"fmt"
)

// ErrProviderBusy marks a transient capacity rejection: the provider is
// saturated and the same request may succeed later.
var ErrProviderBusy = errors.New("provider at capacity")

// IsTransient reports whether err is a capacity rejection worth retrying.
// Every other launch error is fatal.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderBusy)
}

// ProviderError is a non-2xx answer from a provider API.
type ProviderError struct {
	Provider   string
	Operation  string
	StatusCode int
	Code       string
	Message    string
	busy       bool
}

// NewProviderError builds a ProviderError. busy marks the error as a
// capacity rejection.
func NewProviderError(provider, operation string, statusCode int, code, message string, busy bool) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		busy:       busy,
	}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d (%s): %s", e.Provider, e.Operation, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Operation, e.StatusCode, msg)
}

// Is makes capacity rejections match ErrProviderBusy.
func (e *ProviderError) Is(target error) bool {
	return e.busy && target == ErrProviderBusy
}
