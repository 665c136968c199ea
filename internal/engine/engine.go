package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/qexec/internal/events"
	"github.com/roach88/qexec/internal/format"
	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// Engine executes queries. It keeps no per-call state and is safe for
// concurrent use.
type Engine struct {
	formatter format.Formatter
	hooks     events.Hooks
	logger    *zap.Logger
	idGen     IDGenerator
	capSQL    bool
	nativeFmt bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFormatter replaces the value formatter. Default: format.Default.
func WithFormatter(f format.Formatter) Option {
	return func(e *Engine) {
		e.formatter = f
	}
}

// WithHooks sets the lifecycle hooks. Combine several with events.Chain.
func WithHooks(h events.Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithLogger sets the engine logger. Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator sets the generator used by NewScope. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.idGen = g
	}
}

// WithCapitalizedSQL renders generated SQL in upper case
// ("SELECT * FROM" rather than "select * from").
func WithCapitalizedSQL(on bool) Option {
	return func(e *Engine) {
		e.capSQL = on
	}
}

// WithNativeFormatting sends plain-text queries to the client with separate
// parameters instead of formatting values into the text. Function calls are
// always formatted.
func WithNativeFormatting(on bool) Option {
	return func(e *Engine) {
		e.nativeFmt = on
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		formatter: format.Default,
		logger:    zap.NewNop(),
		idGen:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewScope returns a Scope for c with a freshly generated correlation id.
func (e *Engine) NewScope(c Client, tag any) Scope {
	return Scope{Client: c, Tag: tag, ID: e.idGen.Generate()}
}

// Go starts a call and returns its Future immediately.
//
// mask is optional; without it the result is shaped as result.Any.
func (e *Engine) Go(ctx context.Context, sc Scope, q query.Descriptor, values any, mask ...result.Mask) *Future {
	f := newFuture()
	go e.run(ctx, f, sc, q, values, false, mask)
	return f
}

// Execute runs a call and waits for its outcome.
func (e *Engine) Execute(ctx context.Context, sc Scope, q query.Descriptor, values any, mask ...result.Mask) (result.Outcome, error) {
	f := newFuture()
	e.run(ctx, f, sc, q, values, false, mask)
	return f.Wait()
}

// call is the state of one execution. The err field is the single error
// cell: the first error recorded wins.
type call struct {
	eng    *Engine
	fut    *Future
	scope  Scope
	text   string
	params []any
	err    error
	done   bool
}

// hookContext builds the hook snapshot from the call's current state.
func (c *call) hookContext() events.Context {
	ec := events.Context{
		Text:   c.text,
		Params: c.params,
		Tag:    c.scope.Tag,
		ID:     c.scope.ID,
	}
	if c.scope.Client != nil {
		ec.Client = c.scope.Client
	}
	return ec
}

// fail records err unless an earlier error is already recorded.
func (c *call) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// check settles the call as rejected if an error is recorded, notifying
// the Error hook once. It reports whether the call is settled.
func (c *call) check() bool {
	if c.done {
		return true
	}
	if c.scope.Client == nil {
		c.fail(ErrLooseQuery)
	}
	if c.err == nil {
		return false
	}
	c.done = true
	c.err = unwrapInternal(c.err)
	if perr := c.eng.hooks.NotifyError(c.err, c.hookContext()); perr != nil {
		c.eng.logger.Warn("error hook failed", zap.Error(perr))
	}
	c.fut.reject(c.err)
	return true
}

func (c *call) resolve(out result.Outcome) {
	if c.check() {
		return
	}
	c.done = true
	c.fut.resolve(out)
}

func (e *Engine) run(ctx context.Context, f *Future, sc Scope, q query.Descriptor, values any, special bool, masks []result.Mask) {
	c := &call{eng: e, fut: f, scope: sc}

	n, err := query.Normalize(q, values, e.nativeFmt)
	c.text, c.params = n.Text, n.Params
	c.fail(err)

	mask := result.Any
	if c.err == nil && !special {
		mask, err = result.ValidateMask(masks...)
		c.fail(err)
	}

	if c.err == nil && (!n.Native || n.IsFunc) {
		e.format(c, n)
	}

	// Cancellation is honored up to this point; the dispatch below is not
	// cancellable.
	c.fail(ctx.Err())
	if c.check() {
		return
	}

	c.fail(e.hooks.NotifyQuery(c.hookContext()))
	if c.check() {
		return
	}

	res, err := e.dispatch(ctx, sc.Client, query.Statement{Name: n.Name, Text: c.text, Params: c.params})
	if err != nil {
		c.fail(err)
		c.check()
		return
	}

	if len(res.Rows) > 0 {
		// A receive error replaces anything pending.
		if err := e.hooks.NotifyReceive(res.Rows, res, c.hookContext()); err != nil {
			c.err = err
		}
	}
	if c.check() {
		return
	}

	if special {
		c.resolve(result.Outcome{Kind: result.KindRows, Rows: res.Rows, Duration: res.Duration, Result: res})
		return
	}
	out, err := result.Shape(res, mask, c.text, c.params)
	c.fail(err)
	c.resolve(out)
}

// format substitutes values into the call's text. On failure the call keeps
// readable diagnostics: a stub call text for functions, the original values
// as params for queries.
func (e *Engine) format(c *call, n query.Normalized) {
	var (
		text string
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &InternalError{Value: r}
			}
		}()
		if n.IsFunc {
			text, err = e.formatter.FormatFunction(n.Text, n.Values, e.capSQL)
		} else {
			text, err = e.formatter.FormatQuery(n.Text, n.Values)
		}
	}()

	if n.IsFunc {
		c.params = nil
	}
	if err != nil {
		if n.IsFunc {
			c.text = format.FunctionPrefix(e.capSQL) + " " + n.Text + "(...)"
		} else {
			c.params = query.Params(n.Values)
		}
		c.fail(err)
		return
	}
	c.text = text
}

// dispatch calls the client exactly once and returns the last result set,
// with the elapsed time recorded on it. A panicking client fails the call.
func (e *Engine) dispatch(ctx context.Context, client Client, stmt query.Statement) (res *result.Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &InternalError{Value: r}
		}
	}()

	results, err := client.Exec(context.WithoutCancel(ctx), stmt)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Debug("query failed in client",
			zap.String("query", stmt.Text),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}

	res = &result.Result{RowsAffected: -1}
	if len(results) > 0 && results[len(results)-1] != nil {
		res = results[len(results)-1]
	}
	if res.Rows == nil {
		res.Rows = []result.Row{}
	}
	res.Duration = elapsed

	e.logger.Debug("query executed",
		zap.String("query", stmt.Text),
		zap.Int("results", len(results)),
		zap.Int("rows", len(res.Rows)),
		zap.Duration("duration", elapsed))
	return res, nil
}
