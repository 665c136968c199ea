package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFile is an in-memory Preparable.
type fakeFile struct {
	name     string
	sql      string
	err      error
	prepared int
}

func (f *fakeFile) Prepare()     { f.prepared++ }
func (f *fakeFile) Err() error   { return f.err }
func (f *fakeFile) File() string { return f.name }
func (f *fakeFile) SQL() string  { return f.sql }

func TestNormalize_NilDescriptor(t *testing.T) {
	_, err := Normalize(nil, nil, false)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalize_Text(t *testing.T) {
	n, err := Normalize(Raw("SELECT 1"), nil, false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", n.Text)
	assert.False(t, n.Native)
	assert.False(t, n.IsFunc)
	assert.Nil(t, n.Params)
}

func TestNormalize_EmptyText(t *testing.T) {
	_, err := Normalize(Raw(""), nil, false)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalize_TextNativeCarriesParams(t *testing.T) {
	n, err := Normalize(Raw("SELECT $1"), 42, true)
	require.NoError(t, err)
	assert.True(t, n.Native)
	assert.Equal(t, []any{42}, n.Params)
}

func TestNormalize_FilePrepared(t *testing.T) {
	f := &fakeFile{name: "users/find.sql", sql: "SELECT * FROM users"}
	n, err := Normalize(FromFile(f), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.prepared)
	assert.Equal(t, "SELECT * FROM users", n.Text)
}

func TestNormalize_FileFailureUsesDisplayName(t *testing.T) {
	cause := errors.New("file not found")
	f := &fakeFile{name: "missing.sql", err: cause}

	n, err := Normalize(FromFile(f), []any{1}, false)
	assert.Same(t, cause, err)
	assert.Equal(t, "missing.sql", n.Text)
}

func TestNormalize_FileNilHandle(t *testing.T) {
	_, err := Normalize(File{}, nil, false)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	var f *fakeFile
	_, err = Normalize(File{Handle: f}, nil, false)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalize_Func(t *testing.T) {
	n, err := Normalize(Function("get_user", 1), nil, true)
	require.NoError(t, err)
	assert.True(t, n.IsFunc)
	assert.False(t, n.Native, "function calls never use native formatting")
	assert.Nil(t, n.Params)
	assert.Equal(t, "get_user", n.Text)
}

func TestNormalize_FuncWithoutName(t *testing.T) {
	n, err := Normalize(Func{}, nil, false)
	assert.ErrorIs(t, err, ErrInvalidFunction)
	assert.True(t, n.IsFunc)
}

func TestNormalize_PreparedStatement(t *testing.T) {
	n, err := Normalize(Prepared("find-user", "SELECT * FROM users WHERE id = $1", 5), nil, false)
	require.NoError(t, err)
	assert.True(t, n.Native)
	assert.Equal(t, "find-user", n.Name)
	assert.Equal(t, "SELECT * FROM users WHERE id = $1", n.Text)
	assert.Equal(t, []any{5}, n.Params)
}

func TestNormalize_PreparedAttachesValuesWithoutMutating(t *testing.T) {
	ps := Prepared("find-user", "SELECT * FROM users WHERE id = $1")

	n, err := Normalize(ps, []any{9}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{9}, n.Params)
	assert.Nil(t, ps.Values, "caller's descriptor must not change")
}

func TestNormalize_PreparedKeepsOwnValues(t *testing.T) {
	ps := Prepared("find-user", "SELECT * FROM users WHERE id = $1", 1)

	n, err := Normalize(ps, []any{2}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{1}, n.Params)
}

func TestNormalize_PreparedWithoutName(t *testing.T) {
	n, err := Normalize(Prepared("", "SELECT 1"), nil, false)
	require.Error(t, err)
	assert.True(t, IsStatementError(err))
	assert.Equal(t, "SELECT 1", n.Text)
}

func TestNormalize_PreparedFromFile(t *testing.T) {
	f := &fakeFile{name: "q.sql", sql: "SELECT 2"}
	ps := &PreparedStatement{Name: "two", File: f}

	n, err := Normalize(ps, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", n.Text)
}

func TestNormalize_PreparedFromBrokenFile(t *testing.T) {
	cause := errors.New("syntax")
	ps := &PreparedStatement{Name: "broken", File: &fakeFile{name: "b.sql", err: cause}}

	_, err := Normalize(ps, nil, false)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStatementError(err))
}

func TestNormalize_Parameterized(t *testing.T) {
	n, err := Normalize(Parameterized("SELECT $1::int"), "7", false)
	require.NoError(t, err)
	assert.True(t, n.Native)
	assert.Empty(t, n.Name)
	assert.Equal(t, []any{"7"}, n.Params)
}

func TestNormalize_ParameterizedEmptyText(t *testing.T) {
	_, err := Normalize(Parameterized(""), nil, false)
	assert.True(t, IsStatementError(err))
}

func TestNormalize_NilTypedPointers(t *testing.T) {
	var ps *PreparedStatement
	_, err := Normalize(ps, nil, false)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	var pq *ParameterizedQuery
	_, err = Normalize(pq, nil, false)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalize_NeverFuncAndNative(t *testing.T) {
	descriptors := []Descriptor{
		Raw("SELECT 1"),
		FromFile(&fakeFile{sql: "SELECT 1"}),
		Prepared("p", "SELECT 1"),
		Parameterized("SELECT 1"),
		Function("f"),
	}
	for _, d := range descriptors {
		for _, native := range []bool{false, true} {
			n, err := Normalize(d, nil, native)
			require.NoError(t, err)
			assert.False(t, n.IsFunc && n.Native, "%T native=%v", d, native)
		}
	}
}

func TestParams(t *testing.T) {
	assert.Nil(t, Params(nil))
	assert.Equal(t, []any{1, "a"}, Params([]any{1, "a"}))
	assert.Equal(t, []any{1, 2}, Params([]int{1, 2}))
	assert.Equal(t, []any{"x", "y"}, Params([2]string{"x", "y"}))
	assert.Equal(t, []any{[]byte("raw")}, Params([]byte("raw")))
	assert.Equal(t, []any{3.5}, Params(3.5))
}

func TestNormalize_FuncValuesPreferred(t *testing.T) {
	n, err := Normalize(Function("f", 1, 2), []any{9}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, n.Values)

	n, err = Normalize(Function("f"), []any{9}, false)
	require.NoError(t, err)
	assert.Equal(t, []any{9}, n.Values)
}
