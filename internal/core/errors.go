package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrompt is returned when a turn is requested without a prompt.
	ErrEmptyPrompt = errors.New("prompt is required")

	// ErrBackendUnreachable means the transport could not connect to the
	// inference backend at all.
	ErrBackendUnreachable = errors.New("inference backend unreachable")

	// ErrBackendTimeout means the backend did not answer within the
	// configured deadline.
	ErrBackendTimeout = errors.New("inference backend timed out")

	// ErrBackendProtocol means the backend answered with a body this client
	// could not parse.
	ErrBackendProtocol = errors.New("inference backend returned malformed output")
)

// BackendHTTPError carries a non-success status returned by the inference
// backend so the caller can propagate it.
type BackendHTTPError struct {
	Status int
	Body   string
}

func (e *BackendHTTPError) Error() string {
	return fmt.Sprintf("inference backend returned status %d: %s", e.Status, e.Body)
}
