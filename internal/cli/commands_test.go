package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_RunsQueryFile(t *testing.T) {
	db := seedDB(t)
	sqlPath := filepath.Join(t.TempDir(), "user.sql")
	require.NoError(t, os.WriteFile(sqlPath, []byte("-- one user\nSELECT name\nFROM users\nWHERE id = ${id}\n"), 0o644))

	out, _, err := execute(t, "file", "--db", db, "--format", "json", "--minify",
		"--mask", "one", "-p", "{id: 2}", sqlPath)
	require.NoError(t, err)

	_, data := decodeResponse(t, out)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "bob", data.Rows[0]["name"])
}

func TestFile_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.sql")

	out, _, err := execute(t, "file", "--db", seedDB(t), missing)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [QUERY_FILE]")
}

func TestFunc_TableValuedFunction(t *testing.T) {
	db := seedDB(t)

	out, _, err := execute(t, "func", "--db", db, "--format", "json", "--mask", "many", "json_each", "[10,20]")
	require.NoError(t, err)

	_, data := decodeResponse(t, out)
	require.Len(t, data.Rows, 2)
	assert.EqualValues(t, 10, data.Rows[0]["value"])
	assert.EqualValues(t, 20, data.Rows[1]["value"])
}

func TestFunc_ProcRejectsSeveralRows(t *testing.T) {
	out, _, err := execute(t, "func", "--db", seedDB(t), "--proc", "json_each", "[1,2]")
	require.Error(t, err)
	assert.Contains(t, out, "Error [MULTIPLE]")
}

func TestFunc_ProcAndMaskExclusive(t *testing.T) {
	_, _, err := execute(t, "func", "--db", seedDB(t), "--proc", "--mask", "one", "json_each", "[1]")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"42", "true", "ann", "'quoted'", "null", "[1,2]", "{a: 1}", "1.5"})
	assert.Equal(t, []any{42, true, "ann", "quoted", nil, "[1,2]", "{a: 1}", 1.5}, got)
}

func TestParseValues(t *testing.T) {
	v, err := parseValues("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parseValues(`[1, "a"]`)
	require.NoError(t, err)
	assert.Equal(t, []any{1, "a"}, v)

	v, err = parseValues("{id: 7}")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 7}, v)

	v, err = parseValues("5")
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, err = parseValues("[unclosed")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

const passingBatch = `name: cli-users
calls:
  - name: ann
    query: SELECT name FROM users WHERE id = 1
    mask: one
    expect:
      row: {name: ann}
  - name: none
    query: SELECT name FROM users WHERE id = 3
    mask: one-or-none
`

const failingBatch = `name: cli-broken
calls:
  - name: wrong
    query: SELECT name FROM users
    expect:
      rows: 5
`

func writeBatch(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBatch_Pass(t *testing.T) {
	out, _, err := execute(t, "batch", "--db", seedDB(t), writeBatch(t, passingBatch))
	require.NoError(t, err)
	assert.Contains(t, out, "PASS cli-users (2 passed, 0 failed)")
}

func TestBatch_FailExitCode(t *testing.T) {
	db := seedDB(t)
	out, _, err := execute(t, "batch", "--db", db, writeBatch(t, passingBatch), writeBatch(t, failingBatch))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 batches failed")
	assert.Contains(t, out, "FAIL cli-broken")
	assert.Contains(t, out, "Expected: 5 rows")
}

func TestBatch_JSON(t *testing.T) {
	out, _, err := execute(t, "batch", "--db", seedDB(t), "--format", "json", "--parallel", "2",
		writeBatch(t, passingBatch))
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)
	assert.Contains(t, out, `"batch":"cli-users"`)
	assert.Contains(t, out, `"passed":2`)
}

func TestBatch_InvalidFile(t *testing.T) {
	_, _, err := execute(t, "batch", "--db", seedDB(t), writeBatch(t, "name: x\n"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load")
}
