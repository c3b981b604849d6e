package detect

import "errors"

// Invalid-input errors are the only failures surfaced to callers; everything
// inside a layer fails open into a LayerResult instead.
var (
	// ErrInputTooLong is returned when the input exceeds the configured
	// maximum length, before any layer runs.
	ErrInputTooLong = errors.New("input exceeds maximum length")

	// ErrInvalidLayer is returned when a requested layer number is outside
	// {1, 2, 3}.
	ErrInvalidLayer = errors.New("invalid layer number: must be 1, 2, or 3")
)
