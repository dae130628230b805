// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTaskStatus is returned when a task status is not one of the
	// canonical values.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrEmptyTaskKind is returned when a task has no job kind.
	ErrEmptyTaskKind = errors.New("task kind cannot be empty")

	// ErrTerminalTask is returned when a caller tries to move a task out of a
	// terminal status.
	ErrTerminalTask = errors.New("task is already in a terminal status")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)
