package core

import "errors"

var (
	// ErrRequestNotFound is returned when no verification request matches
	// the given token or id
	ErrRequestNotFound = errors.New("verification request not found")

	// ErrRequestExpired is returned when responding to a request that has
	// already been swept to EXPIRED
	ErrRequestExpired = errors.New("verification request expired")

	// ErrCategoryNotFound is returned when a named category does not exist
	ErrCategoryNotFound = errors.New("category not found")
)
