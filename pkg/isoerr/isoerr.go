// Package isoerr defines the error kinds returned by the image builder. Every error produced while composing or
// writing an image wraps exactly one of these so callers can classify it with errors.Is.
package isoerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for a missing source file or a path that does not resolve in the tree.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed paths and for values that do not fit their on-disk field.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyExists is returned when a path collides with an existing entry of the tree.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidData is returned when an internal structural invariant is violated.
	ErrInvalidData = errors.New("invalid data")
)

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// InvalidInput wraps ErrInvalidInput with a formatted message.
func InvalidInput(format string, args ...interface{}) error {
	return wrap(ErrInvalidInput, format, args...)
}

// AlreadyExists wraps ErrAlreadyExists with a formatted message.
func AlreadyExists(format string, args ...interface{}) error {
	return wrap(ErrAlreadyExists, format, args...)
}

// InvalidData wraps ErrInvalidData with a formatted message.
func InvalidData(format string, args ...interface{}) error {
	return wrap(ErrInvalidData, format, args...)
}

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
