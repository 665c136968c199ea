package engine

import (
	"context"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// None executes a query that must return no rows.
func (e *Engine) None(ctx context.Context, sc Scope, q query.Descriptor, values any) error {
	_, err := e.Execute(ctx, sc, q, values, result.None)
	return err
}

// One executes a query that must return exactly one row.
func (e *Engine) One(ctx context.Context, sc Scope, q query.Descriptor, values any) (result.Row, error) {
	out, err := e.Execute(ctx, sc, q, values, result.One)
	return out.Row, err
}

// OneOrNone executes a query returning at most one row. The row is nil when
// none was returned.
func (e *Engine) OneOrNone(ctx context.Context, sc Scope, q query.Descriptor, values any) (result.Row, error) {
	out, err := e.Execute(ctx, sc, q, values, result.OneOrNone)
	return out.Row, err
}

// Many executes a query that must return at least one row.
func (e *Engine) Many(ctx context.Context, sc Scope, q query.Descriptor, values any) ([]result.Row, error) {
	out, err := e.Execute(ctx, sc, q, values, result.Many)
	return out.Rows, err
}

// ManyOrNone executes a query returning any number of rows. The slice is
// empty, not nil, when no rows were returned.
func (e *Engine) ManyOrNone(ctx context.Context, sc Scope, q query.Descriptor, values any) ([]result.Row, error) {
	out, err := e.Execute(ctx, sc, q, values, result.ManyOrNone)
	return out.Rows, err
}

// Any is ManyOrNone.
func (e *Engine) Any(ctx context.Context, sc Scope, q query.Descriptor, values any) ([]result.Row, error) {
	return e.ManyOrNone(ctx, sc, q, values)
}

// Result executes a query and returns the raw result without shaping.
// Any row count is accepted.
func (e *Engine) Result(ctx context.Context, sc Scope, q query.Descriptor, values any) (*result.Result, error) {
	f := newFuture()
	e.run(ctx, f, sc, q, values, true, nil)
	out, err := f.Wait()
	return out.Result, err
}

// Func calls a database function and shapes its rows with mask.
func (e *Engine) Func(ctx context.Context, sc Scope, name string, values []any, mask ...result.Mask) (result.Outcome, error) {
	return e.Execute(ctx, sc, query.Function(name, values...), nil, mask...)
}

// Proc calls a stored procedure, returning its single output row or nil.
func (e *Engine) Proc(ctx context.Context, sc Scope, name string, values ...any) (result.Row, error) {
	out, err := e.Execute(ctx, sc, query.Function(name, values...), nil, result.OneOrNone)
	return out.Row, err
}
