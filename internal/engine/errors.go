package engine

import (
	"errors"
	"fmt"
)

// ErrLooseQuery is returned when a call has no execution client.
var ErrLooseQuery = errors.New("querying against a released or lost connection")

// InternalError wraps a panic value raised by a collaborator (formatter,
// client or hook). It never reaches callers: the engine unwraps it to its
// cause before settling.
type InternalError struct {
	Value any
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Value)
}

// Cause returns the wrapped value as an error.
func (e *InternalError) Cause() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return fmt.Errorf("%v", e.Value)
}

// unwrapInternal returns the cause of an InternalError, or err itself.
func unwrapInternal(err error) error {
	if ie, ok := err.(*InternalError); ok {
		return ie.Cause()
	}
	return err
}
