package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no Result row exists for the request id.
	ErrNotFound = errors.New("result not found")
	// ErrStatusConflict means a guarded update lost the race: the row's
	// status already advanced past what the caller expected.
	ErrStatusConflict = errors.New("result status already advanced")
	// ErrStaleHandle means an acknowledge used a handle that no longer
	// owns the delivery (expired or already acked).
	ErrStaleHandle = errors.New("delivery handle is stale")
)

// ValidationError rejects a slot mapping, naming the first offending
// slot. It is surfaced to the user for correction and never enqueued.
type ValidationError struct {
	Slot   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid slot %q: %s", e.Slot, e.Reason)
}

type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks err as not retryable. Unmarked errors from
// collaborators are treated as transient and recovered via queue
// redelivery.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

// IsTerminal reports whether err carries a Terminal mark.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
