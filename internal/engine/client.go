package engine

import (
	"context"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// Client executes statements. Implementations may return several result
// sets for multi-statement text; the engine shapes only the last one.
type Client interface {
	Exec(ctx context.Context, stmt query.Statement) ([]*result.Result, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, stmt query.Statement) ([]*result.Result, error)

// Exec calls f.
func (f ClientFunc) Exec(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
	return f(ctx, stmt)
}

// Scope is the caller's connection context for one or more calls.
type Scope struct {
	// Client executes the call. A nil Client fails the call with
	// ErrLooseQuery.
	Client Client

	// Tag is an arbitrary diagnostic tag passed to hooks.
	Tag any

	// ID correlates hook notifications of one logical operation.
	ID string
}
