package storage

import (
	"errors"
	"fmt"
)

// ErrTransient marks failures worth retrying (busy database, dropped
// connection). Backends wrap the underlying error with it.
var ErrTransient = errors.New("transient storage error")

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("storage backend closed")

// NotFoundError is returned when an item doesn't exist in the backend.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "item not found"
	}

	return "item not found: " + e.ID
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
