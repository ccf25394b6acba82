package app

import "errors"

var (
	// ErrProjectNotFound is returned when no project matches the
	// owner hash and project id pair.
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidUpload is returned when an upload fails validation
	// before any processing happens.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrEmptyQuery is returned when a chat request carries no query.
	ErrEmptyQuery = errors.New("query is required")
)
