package experiment

import "errors"

var (
	ErrNotFound          = errors.New("experiment not found")
	ErrInvalidTransition = errors.New("invalid experiment transition")
	ErrInvalidInterval   = errors.New("rotation interval must be positive")
	// ErrConflict means the row moved on since it was read.
	ErrConflict = errors.New("experiment was modified concurrently")
)
