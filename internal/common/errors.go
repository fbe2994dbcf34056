// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrAlreadyLinked  = errors.New("record already linked")

	// Provider errors.
	ErrAuthExpired  = errors.New("accounting connection authentication expired")
	ErrNoConnection = errors.New("no active accounting connection")
	ErrProviderAPI  = errors.New("accounting provider API error")

	// Import errors.
	ErrNoProjects   = errors.New("no projects to import against")
	ErrMalformedRow = errors.New("malformed row")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsAuthError reports whether err means the operator has to reconnect the accounting system.
// These are the only errors that abort an import or backfill outright.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrNoConnection)
}
