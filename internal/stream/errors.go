package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned for operations attempted after a terminal signal.
	ErrInvalidState = errors.New("invalid stream state")
	// ErrUnsupportedKind is returned when subscribing to a kind the component never emits.
	ErrUnsupportedKind = errors.New("unsupported event kind")
	// ErrAlreadyPiped is returned when connecting a Source that already has a destination.
	ErrAlreadyPiped = errors.New("source already piped")
)

// DecodeError reports a unit that could not be rendered with its encoding hint.
type DecodeError struct {
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode with encoding %q: %v", e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// UnhandledError is returned by the loop when an error notification fires with
// no registered handler. It is fatal to the run.
type UnhandledError struct {
	Component string
	Err       error
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("unhandled error event on %s: %v", e.Component, e.Err)
}

func (e *UnhandledError) Unwrap() error {
	return e.Err
}
