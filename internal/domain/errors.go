package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrMissingIdentifier is returned when an item or record lacks the
	// configured identifier field, or the field is null.
	ErrMissingIdentifier = errors.New("missing identifier")

	// ErrInvalidIdentifier is returned when the identifier value cannot be
	// used as a set key (objects, arrays).
	ErrInvalidIdentifier = errors.New("invalid identifier")
)
