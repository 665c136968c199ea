// Package events defines the lifecycle hooks the engine notifies around
// each query: before dispatch, after rows are received, and on failure.
package events

import (
	"fmt"

	"github.com/roach88/qexec/internal/result"
)

// Context is a snapshot of one call's state handed to every hook.
// It is rebuilt from the call's current text and params for each hook
// invocation and never outlives the call.
type Context struct {
	// Client is the execution handle the query runs against.
	Client any

	// Text is the query text as it will be (or was) executed, or the best
	// diagnostic text available.
	Text string

	// Params are the parameters sent with Text, if any.
	Params []any

	// Tag is the caller-supplied diagnostic tag.
	Tag any

	// ID is the caller-supplied correlation id.
	ID string
}

// Hooks holds the lifecycle callbacks. Nil fields are skipped.
type Hooks struct {
	// Query runs before dispatch. A returned error aborts the call.
	Query func(ec Context) error

	// Receive runs after a result with at least one row arrives and before
	// shaping. A returned error fails the call.
	Receive func(rows []result.Row, res *result.Result, ec Context) error

	// Error runs exactly once for every failed call, for observation only.
	Error func(err error, ec Context)
}

// HookError reports a panic raised inside a hook.
type HookError struct {
	Hook  string
	Value any
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook panicked: %v", e.Hook, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *HookError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NotifyQuery runs the Query hook, converting a panic into an error.
func (h Hooks) NotifyQuery(ec Context) (err error) {
	if h.Query == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Hook: "query", Value: r}
		}
	}()
	return h.Query(ec)
}

// NotifyReceive runs the Receive hook, converting a panic into an error.
func (h Hooks) NotifyReceive(rows []result.Row, res *result.Result, ec Context) (err error) {
	if h.Receive == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Hook: "receive", Value: r}
		}
	}()
	return h.Receive(rows, res, ec)
}

// NotifyError runs the Error hook. A panic inside it is returned so the
// caller can report it; it never changes the call's outcome.
func (h Hooks) NotifyError(cause error, ec Context) (panicked error) {
	if h.Error == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			panicked = &HookError{Hook: "error", Value: r}
		}
	}()
	h.Error(cause, ec)
	return nil
}

// Chain combines hooks, running them in order. For Query and Receive the
// first error stops the chain.
func Chain(hooks ...Hooks) Hooks {
	var out Hooks
	for _, h := range hooks {
		if h.Query != nil {
			out.Query = chainQuery(out.Query, h.Query)
		}
		if h.Receive != nil {
			out.Receive = chainReceive(out.Receive, h.Receive)
		}
		if h.Error != nil {
			out.Error = chainError(out.Error, h.Error)
		}
	}
	return out
}

func chainQuery(prev, next func(Context) error) func(Context) error {
	if prev == nil {
		return next
	}
	return func(ec Context) error {
		if err := prev(ec); err != nil {
			return err
		}
		return next(ec)
	}
}

func chainReceive(prev, next func([]result.Row, *result.Result, Context) error) func([]result.Row, *result.Result, Context) error {
	if prev == nil {
		return next
	}
	return func(rows []result.Row, res *result.Result, ec Context) error {
		if err := prev(rows, res, ec); err != nil {
			return err
		}
		return next(rows, res, ec)
	}
}

func chainError(prev, next func(error, Context)) func(error, Context) {
	if prev == nil {
		return next
	}
	// next runs even when prev panics; the panic still reaches NotifyError.
	return func(err error, ec Context) {
		defer next(err, ec)
		prev(err, ec)
	}
}
