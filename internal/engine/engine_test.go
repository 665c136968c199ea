package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/qexec/internal/events"
	"github.com/roach88/qexec/internal/format"
	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient records every statement and answers with fixed results.
type fakeClient struct {
	mu      sync.Mutex
	calls   []query.Statement
	results []*result.Result
	err     error
	panic   any
}

func (c *fakeClient) Exec(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, stmt)
	c.mu.Unlock()
	if c.panic != nil {
		panic(c.panic)
	}
	return c.results, c.err
}

func (c *fakeClient) Calls() []query.Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]query.Statement(nil), c.calls...)
}

func rowsClient(rows ...result.Row) *fakeClient {
	return &fakeClient{results: []*result.Result{{Command: "SELECT", Rows: rows}}}
}

// errorRecorder captures Error hook notifications.
type errorRecorder struct {
	mu       sync.Mutex
	errs     []error
	contexts []events.Context
}

func (r *errorRecorder) hooks() events.Hooks {
	return events.Hooks{Error: func(err error, ec events.Context) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
		r.contexts = append(r.contexts, ec)
	}}
}

func (r *errorRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// stubFormatter lets a test control formatting outcomes.
type stubFormatter struct {
	query    func(text string, values any) (string, error)
	function func(name string, values any, capitalize bool) (string, error)
}

func (f stubFormatter) FormatQuery(text string, values any) (string, error) {
	return f.query(text, values)
}

func (f stubFormatter) FormatFunction(name string, values any, capitalize bool) (string, error) {
	return f.function(name, values, capitalize)
}

// staticFile is an in-memory query.Preparable.
type staticFile struct {
	name string
	sql  string
	err  error
}

func (f *staticFile) Prepare()     {}
func (f *staticFile) Err() error   { return f.err }
func (f *staticFile) File() string { return f.name }
func (f *staticFile) SQL() string  { return f.sql }

func scope(c Client) Scope {
	return Scope{Client: c, Tag: "test", ID: "call-1"}
}

func TestEngine_SelectOne(t *testing.T) {
	client := rowsClient(result.Row{"?column?": int64(1)})
	e := New()

	out, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT 1"), nil, result.One)
	require.NoError(t, err)
	assert.Equal(t, result.KindRow, out.Kind)
	assert.Equal(t, result.Row{"?column?": int64(1)}, out.Row)
	require.Len(t, client.Calls(), 1)
	assert.Equal(t, "SELECT 1", client.Calls()[0].Text)
}

func TestEngine_SelectOneExpectingNone(t *testing.T) {
	client := rowsClient(result.Row{"?column?": int64(1)})
	rec := &errorRecorder{}
	e := New(WithHooks(rec.hooks()))

	_, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT 1"), nil, result.None)
	require.Error(t, err)
	assert.True(t, result.IsNotEmpty(err))
	assert.Equal(t, 1, rec.count())
}

func TestEngine_ZeroRows(t *testing.T) {
	ctx := context.Background()
	e := New()

	out, err := e.Execute(ctx, scope(rowsClient()), query.Raw("SELECT 1 WHERE false"), nil, result.ManyOrNone)
	require.NoError(t, err)
	assert.Equal(t, result.KindRows, out.Kind)
	assert.NotNil(t, out.Rows)
	assert.Empty(t, out.Rows)

	_, err = e.Execute(ctx, scope(rowsClient()), query.Raw("SELECT 1 WHERE false"), nil, result.Many)
	assert.True(t, result.IsNoData(err))
}

func TestEngine_DefaultMaskIsAny(t *testing.T) {
	client := rowsClient(result.Row{"n": 1}, result.Row{"n": 2})
	e := New()

	out, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT n FROM t"), nil)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 2)
}

func TestEngine_InvalidMaskSkipsDispatch(t *testing.T) {
	for _, m := range []result.Mask{0, 3, 7, 8, -1} {
		client := rowsClient()
		rec := &errorRecorder{}
		e := New(WithHooks(rec.hooks()))

		_, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT 1"), nil, m)
		assert.ErrorIs(t, err, result.ErrInvalidMask, "mask %d", m)
		assert.Empty(t, client.Calls(), "mask %d", m)
		assert.Equal(t, 1, rec.count(), "mask %d", m)
	}
}

func TestEngine_SettlesOnceWhenHooksFail(t *testing.T) {
	client := rowsClient(result.Row{"id": 1})
	rec := &errorRecorder{}
	preErr := errors.New("pre hook refused")
	receiveCalled := false

	hooks := events.Chain(events.Hooks{
		Query: func(events.Context) error { return preErr },
		Receive: func([]result.Row, *result.Result, events.Context) error {
			receiveCalled = true
			return errors.New("receive hook refused")
		},
	}, rec.hooks())
	e := New(WithHooks(hooks))

	_, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT id FROM t"), nil, result.One)
	assert.Same(t, preErr, err)
	assert.False(t, receiveCalled)
	assert.Empty(t, client.Calls())
	assert.Equal(t, 1, rec.count())
}

func TestEngine_ReceiveErrorSupersedesShaping(t *testing.T) {
	client := rowsClient(result.Row{"id": 1}, result.Row{"id": 2})
	rec := &errorRecorder{}
	recvErr := errors.New("rejected rows")

	hooks := events.Chain(events.Hooks{
		Receive: func(rows []result.Row, res *result.Result, ec events.Context) error {
			assert.Len(t, rows, 2)
			assert.Equal(t, res.Rows, rows)
			return recvErr
		},
	}, rec.hooks())
	e := New(WithHooks(hooks))

	// One with two rows would fail shaping with Multiple; the hook wins.
	_, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT id FROM t"), nil, result.One)
	assert.Same(t, recvErr, err)
	assert.Equal(t, 1, rec.count())
}

func TestEngine_ReceiveSkippedWithoutRows(t *testing.T) {
	called := false
	e := New(WithHooks(events.Hooks{
		Receive: func([]result.Row, *result.Result, events.Context) error {
			called = true
			return nil
		},
	}))

	_, err := e.Execute(context.Background(), scope(rowsClient()), query.Raw("DELETE FROM t"), nil, result.None)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEngine_LooseQuery(t *testing.T) {
	rec := &errorRecorder{}
	e := New(WithHooks(rec.hooks()))

	_, err := e.Execute(context.Background(), Scope{}, query.Raw("SELECT 1"), nil)
	assert.ErrorIs(t, err, ErrLooseQuery)
	assert.Equal(t, 1, rec.count())
}

func TestEngine_LooseQueryKeepsEarlierError(t *testing.T) {
	e := New()

	_, err := e.Execute(context.Background(), Scope{}, query.Raw(""), nil)
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestEngine_FileWithStoredError(t *testing.T) {
	cause := errors.New("open users.sql: no such file")
	client := rowsClient()
	rec := &errorRecorder{}
	e := New(WithHooks(rec.hooks()))

	f := &staticFile{name: "users.sql", err: cause}
	_, err := e.Execute(context.Background(), scope(client), query.FromFile(f), nil)
	assert.Same(t, cause, err)
	assert.Empty(t, client.Calls())
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "users.sql", rec.contexts[0].Text)
}

func TestEngine_FileFormatsValues(t *testing.T) {
	client := rowsClient(result.Row{"name": "ann"})
	e := New()

	f := &staticFile{name: "find.sql", sql: "SELECT name FROM users WHERE id = $1"}
	_, err := e.Execute(context.Background(), scope(client), query.FromFile(f), []any{7}, result.One)
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM users WHERE id = 7", client.Calls()[0].Text)
}

func TestEngine_FunctionCall(t *testing.T) {
	tests := []struct {
		name   string
		capSQL bool
		want   string
	}{
		{"lower", false, "select * from get_user(1,'ann')"},
		{"upper", true, "SELECT * FROM get_user(1,'ann')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := rowsClient(result.Row{"id": 1})
			e := New(WithCapitalizedSQL(tt.capSQL), WithNativeFormatting(true))

			out, err := e.Func(context.Background(), scope(client), "get_user", []any{1, "ann"}, result.One)
			require.NoError(t, err)
			assert.Equal(t, result.Row{"id": 1}, out.Row)

			calls := client.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].Text)
			assert.Nil(t, calls[0].Params)
		})
	}
}

func TestEngine_FunctionFormatFailure(t *testing.T) {
	cause := errors.New("unsupported argument")
	rec := &errorRecorder{}
	client := rowsClient()
	e := New(
		WithHooks(rec.hooks()),
		WithCapitalizedSQL(true),
		WithFormatter(stubFormatter{
			function: func(string, any, bool) (string, error) { return "", cause },
		}),
	)

	_, err := e.Execute(context.Background(), scope(client), query.Function("broken", 1), nil)
	assert.Same(t, cause, err)
	assert.Empty(t, client.Calls())
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "SELECT * FROM broken(...)", rec.contexts[0].Text)
	assert.Nil(t, rec.contexts[0].Params)
}

func TestEngine_QueryFormatFailureKeepsValues(t *testing.T) {
	rec := &errorRecorder{}
	e := New(WithHooks(rec.hooks()))

	_, err := e.Execute(context.Background(), scope(rowsClient()), query.Raw("SELECT $2"), []any{"only"})
	require.Error(t, err)
	assert.True(t, format.IsFormatError(err))
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "SELECT $2", rec.contexts[0].Text)
	assert.Equal(t, []any{"only"}, rec.contexts[0].Params)
}

func TestEngine_FormatterPanicIsUnwrapped(t *testing.T) {
	cause := errors.New("formatter exploded")
	rec := &errorRecorder{}
	e := New(
		WithHooks(rec.hooks()),
		WithFormatter(stubFormatter{
			query: func(string, any) (string, error) { panic(cause) },
		}),
	)

	_, err := e.Execute(context.Background(), scope(rowsClient()), query.Raw("SELECT 1"), nil)
	assert.Same(t, cause, err)
	require.Equal(t, 1, rec.count())
	assert.Same(t, cause, rec.errs[0])

	var ie *InternalError
	assert.False(t, errors.As(err, &ie))
}

func TestEngine_FormatterPanicWithValue(t *testing.T) {
	e := New(WithFormatter(stubFormatter{
		query: func(string, any) (string, error) { panic("bad state") },
	}))

	_, err := e.Execute(context.Background(), scope(rowsClient()), query.Raw("SELECT 1"), nil)
	require.Error(t, err)
	assert.Equal(t, "bad state", err.Error())
}

func TestEngine_NativeFormatting(t *testing.T) {
	client := rowsClient(result.Row{"id": 5})
	e := New(WithNativeFormatting(true))

	_, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT id FROM t WHERE id = $1"), 5, result.One)
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SELECT id FROM t WHERE id = $1", calls[0].Text)
	assert.Equal(t, []any{5}, calls[0].Params)
}

func TestEngine_PreparedStatement(t *testing.T) {
	client := rowsClient(result.Row{"id": 5})
	e := New()

	ps := query.Prepared("find-by-id", "SELECT id FROM t WHERE id = $1")
	_, err := e.Execute(context.Background(), scope(client), ps, []any{5}, result.One)
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, query.Statement{Name: "find-by-id", Text: "SELECT id FROM t WHERE id = $1", Params: []any{5}}, calls[0])
	assert.Nil(t, ps.Values)
}

func TestEngine_TransportErrorPassesThrough(t *testing.T) {
	cause := errors.New("connection reset")
	client := &fakeClient{err: cause}
	rec := &errorRecorder{}
	e := New(WithHooks(rec.hooks()))

	_, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT 1"), nil)
	assert.Same(t, cause, err)
	assert.Equal(t, 1, rec.count())
}

func TestEngine_ClientPanic(t *testing.T) {
	cause := errors.New("driver crashed")
	client := &fakeClient{panic: cause}
	rec := &errorRecorder{}
	e := New(WithHooks(rec.hooks()))

	_, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT 1"), nil)
	assert.Same(t, cause, err)
	assert.Equal(t, 1, rec.count())
}

func TestEngine_LastResultSetIsShaped(t *testing.T) {
	client := &fakeClient{results: []*result.Result{
		{Command: "INSERT", RowsAffected: 1},
		{Command: "SELECT", Rows: []result.Row{{"id": 9}}},
	}}
	e := New()

	out, err := e.Execute(context.Background(), scope(client), query.Raw("INSERT INTO t VALUES (9); SELECT id FROM t"), nil, result.One)
	require.NoError(t, err)
	assert.Equal(t, result.Row{"id": 9}, out.Row)
	assert.Equal(t, "SELECT", out.Result.Command)
}

func TestEngine_NoResultSets(t *testing.T) {
	client := &fakeClient{}
	e := New()

	out, err := e.Execute(context.Background(), scope(client), query.Raw("SET x = 1"), nil, result.None)
	require.NoError(t, err)
	assert.True(t, out.IsNull())
	require.NotNil(t, out.Result)
	assert.NotNil(t, out.Result.Rows)
}

func TestEngine_DurationRecorded(t *testing.T) {
	client := ClientFunc(func(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
		time.Sleep(5 * time.Millisecond)
		return []*result.Result{{Rows: []result.Row{{"id": 1}}}}, nil
	})
	e := New()

	out, err := e.Execute(context.Background(), scope(client), query.Raw("SELECT 1"), nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Duration, 5*time.Millisecond)
	assert.Equal(t, out.Duration, out.Result.Duration)
}

type ctxKey struct{}

func TestEngine_DispatchIgnoresCancellation(t *testing.T) {
	var clientErr error
	var value any
	client := ClientFunc(func(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
		clientErr = ctx.Err()
		value = ctx.Value(ctxKey{})
		return []*result.Result{{Rows: []result.Row{{"id": 1}}}}, nil
	})

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "kept"))
	defer cancel()
	// The Query hook is the last step before dispatch.
	e := New(WithHooks(events.Hooks{Query: func(events.Context) error {
		cancel()
		return nil
	}}))

	_, err := e.Execute(ctx, scope(client), query.Raw("SELECT 1"), nil, result.One)
	require.NoError(t, err)
	assert.Error(t, ctx.Err())
	assert.NoError(t, clientErr)
	assert.Equal(t, "kept", value)
}

func TestEngine_CancelledBeforeDispatch(t *testing.T) {
	client := rowsClient(result.Row{"id": 1})
	rec := &errorRecorder{}
	queryHook := false
	hooks := events.Chain(events.Hooks{Query: func(events.Context) error {
		queryHook = true
		return nil
	}}, rec.hooks())
	e := New(WithHooks(hooks))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, scope(client), query.Raw("SELECT $1"), []any{1}, result.One)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, queryHook)
	assert.Empty(t, client.Calls())
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "SELECT 1", rec.contexts[0].Text)
}

func TestEngine_HookContext(t *testing.T) {
	var seen []events.Context
	client := rowsClient(result.Row{"id": 1})
	e := New(WithHooks(events.Hooks{
		Query: func(ec events.Context) error {
			seen = append(seen, ec)
			return nil
		},
		Receive: func(_ []result.Row, _ *result.Result, ec events.Context) error {
			seen = append(seen, ec)
			return nil
		},
	}))

	sc := Scope{Client: client, Tag: "report", ID: "abc"}
	_, err := e.Execute(context.Background(), sc, query.Raw("SELECT $1"), []any{1})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	for _, ec := range seen {
		assert.Equal(t, "SELECT 1", ec.Text)
		assert.Equal(t, "report", ec.Tag)
		assert.Equal(t, "abc", ec.ID)
		assert.Equal(t, client, ec.Client)
	}
}

func TestEngine_ErrorHookPanicIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cause := errors.New("boom")
	e := New(
		WithLogger(zap.New(core)),
		WithHooks(events.Hooks{Error: func(error, events.Context) { panic("hook bug") }}),
	)

	_, err := e.Execute(context.Background(), scope(&fakeClient{err: cause}), query.Raw("SELECT 1"), nil)
	assert.Same(t, cause, err)
	assert.Equal(t, 1, logs.FilterMessage("error hook failed").Len())
}

func TestEngine_DebugLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := New(WithLogger(zap.New(core)))

	_, err := e.Execute(context.Background(), scope(rowsClient(result.Row{"id": 1})), query.Raw("SELECT 1"), nil)
	require.NoError(t, err)

	entries := logs.FilterMessage("query executed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "SELECT 1", entries[0].ContextMap()["query"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["rows"])
}

func TestEngine_Result(t *testing.T) {
	client := &fakeClient{results: []*result.Result{{Command: "UPDATE", RowsAffected: 3}}}
	e := New()

	res, err := e.Result(context.Background(), scope(client), query.Raw("UPDATE t SET x = 1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE", res.Command)
	assert.Equal(t, int64(3), res.RowsAffected)
}

func TestEngine_ResultAcceptsAnyRowCount(t *testing.T) {
	client := rowsClient(result.Row{"id": 1}, result.Row{"id": 2})
	e := New()

	res, err := e.Result(context.Background(), scope(client), query.Raw("SELECT id FROM t"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
}

func TestEngine_ConvenienceMethods(t *testing.T) {
	ctx := context.Background()
	e := New()
	one := result.Row{"id": 1}
	two := []result.Row{{"id": 1}, {"id": 2}}

	require.NoError(t, e.None(ctx, scope(rowsClient()), query.Raw("DELETE FROM t"), nil))

	row, err := e.One(ctx, scope(rowsClient(one)), query.Raw("SELECT 1"), nil)
	require.NoError(t, err)
	assert.Equal(t, one, row)

	row, err = e.OneOrNone(ctx, scope(rowsClient()), query.Raw("SELECT 1"), nil)
	require.NoError(t, err)
	assert.Nil(t, row)

	rows, err := e.Many(ctx, scope(rowsClient(two...)), query.Raw("SELECT id FROM t"), nil)
	require.NoError(t, err)
	assert.Equal(t, two, rows)

	rows, err = e.ManyOrNone(ctx, scope(rowsClient()), query.Raw("SELECT id FROM t"), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = e.Any(ctx, scope(rowsClient(two...)), query.Raw("SELECT id FROM t"), nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = e.OneOrNone(ctx, scope(rowsClient(two...)), query.Raw("SELECT id FROM t"), nil)
	assert.True(t, result.IsMultiple(err))
}

func TestEngine_Proc(t *testing.T) {
	client := rowsClient(result.Row{"out": "done"})
	e := New()

	row, err := e.Proc(context.Background(), scope(client), "archive", 2024)
	require.NoError(t, err)
	assert.Equal(t, result.Row{"out": "done"}, row)
	assert.Equal(t, "select * from archive(2024)", client.Calls()[0].Text)
}

func TestEngine_Go(t *testing.T) {
	release := make(chan struct{})
	client := ClientFunc(func(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
		<-release
		return []*result.Result{{Rows: []result.Row{{"id": 1}}}}, nil
	})
	e := New()

	f := e.Go(context.Background(), scope(client), query.Raw("SELECT 1"), nil, result.One)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.WaitContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	out, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, result.Row{"id": 1}, out.Row)

	select {
	case <-f.Done():
	default:
		t.Fatal("future not done after Wait")
	}
}

func TestEngine_ConcurrentCalls(t *testing.T) {
	var dispatched atomic.Int32
	client := ClientFunc(func(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
		dispatched.Add(1)
		return []*result.Result{{Rows: []result.Row{{"q": stmt.Text}}}}, nil
	})
	e := New()

	const n = 50
	futures := make([]*Future, n)
	for i := range futures {
		futures[i] = e.Go(context.Background(), scope(client), query.Raw("SELECT $1"), []any{i}, result.One)
	}
	for i, f := range futures {
		out, err := f.Wait()
		require.NoError(t, err)
		assert.Equal(t, "SELECT "+strconv.Itoa(i), out.Row["q"])
	}
	assert.Equal(t, int32(n), dispatched.Load())
}

func TestEngine_NewScope(t *testing.T) {
	e := New(WithIDGenerator(NewFixedGenerator("id-1", "id-2")))
	c := rowsClient()

	s1 := e.NewScope(c, "a")
	s2 := e.NewScope(c, "b")
	assert.Equal(t, "id-1", s1.ID)
	assert.Equal(t, "id-2", s2.ID)
	assert.Equal(t, "a", s1.Tag)
}

func TestFuture_SettlesOnce(t *testing.T) {
	f := newFuture()
	assert.True(t, f.reject(errors.New("first")))
	assert.False(t, f.resolve(result.Outcome{Kind: result.KindRow}))

	_, err := f.Wait()
	assert.EqualError(t, err, "first")
}
