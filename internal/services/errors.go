package services

import "errors"

// Request errors
var (
	// ErrInvalidInput wraps validation failures of user input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden is returned when the caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")
)
