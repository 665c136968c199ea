package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// rowCommands are the leading verbs of statements that return rows.
var rowCommands = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"VALUES":   true,
	"TABLE":    true,
	"SHOW":     true,
	"PRAGMA":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
}

// binaryTypes are column types whose []byte values are kept as bytes.
var binaryTypes = map[string]bool{
	"BLOB":      true,
	"BYTEA":     true,
	"BINARY":    true,
	"VARBINARY": true,
}

// Exec runs stmt and returns every result set the driver reports.
//
// Statements that cannot return rows are executed with ExecContext so the
// affected row count is known; everything else goes through QueryContext.
func (s *Store) Exec(ctx context.Context, stmt query.Statement) ([]*result.Result, error) {
	command := leadingVerb(stmt.Text)

	if !returnsRows(command, stmt.Text) {
		res, err := s.exec(ctx, stmt)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = -1
		}
		return []*result.Result{{Command: command, RowsAffected: affected, Rows: []result.Row{}}}, nil
	}

	rows, err := s.query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*result.Result
	for {
		res, err := scanResult(rows, command)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return results, nil
}

func (s *Store) exec(ctx context.Context, stmt query.Statement) (sql.Result, error) {
	if stmt.Name == "" {
		return s.db.ExecContext(ctx, stmt.Text, stmt.Params...)
	}
	ps, err := s.prepare(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return ps.ExecContext(ctx, stmt.Params...)
}

func (s *Store) query(ctx context.Context, stmt query.Statement) (*sql.Rows, error) {
	if stmt.Name == "" {
		return s.db.QueryContext(ctx, stmt.Text, stmt.Params...)
	}
	ps, err := s.prepare(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return ps.QueryContext(ctx, stmt.Params...)
}

// prepare returns the cached statement for stmt.Name, preparing it on first
// use. Reusing a name with different text is an error.
func (s *Store) prepare(ctx context.Context, stmt query.Statement) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.stmts[stmt.Name]; ok {
		if p.text != stmt.Text {
			return nil, fmt.Errorf("prepared statement %q already exists with different text", stmt.Name)
		}
		return p.stmt, nil
	}

	ps, err := s.db.PrepareContext(ctx, stmt.Text)
	if err != nil {
		return nil, fmt.Errorf("prepare %q: %w", stmt.Name, err)
	}
	s.stmts[stmt.Name] = prepared{text: stmt.Text, stmt: ps}
	return ps, nil
}

// scanResult reads the current result set of rows.
func scanResult(rows *sql.Rows, command string) (*result.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}

	res := &result.Result{
		Command:      command,
		RowsAffected: -1,
		Columns:      columns,
		Rows:         []result.Row{},
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(result.Row, len(columns))
		for i, name := range columns {
			row[name] = columnValue(values[i], types[i])
		}
		res.Rows = append(res.Rows, row)
	}
	// Without columns the set came from a statement that returns no rows, and
	// database/sql does not expose its affected count.
	if len(columns) > 0 {
		res.RowsAffected = int64(len(res.Rows))
	}
	return res, nil
}

// columnValue copies driver-owned bytes, returning text columns as strings.
func columnValue(v any, ct *sql.ColumnType) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if binaryTypes[strings.ToUpper(ct.DatabaseTypeName())] {
		return append([]byte(nil), b...)
	}
	return string(b)
}

// leadingVerb returns the upper-cased first keyword of text, skipping
// leading comments.
func leadingVerb(text string) string {
	code := strings.TrimSpace(sqlCode(text))
	end := strings.IndexFunc(code, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end < 0 {
		end = len(code)
	}
	return strings.ToUpper(code[:end])
}

// returnsRows reports whether text should be run as a query: a row-returning
// verb, a RETURNING clause, or several statements. Comments and quoted text
// are ignored.
func returnsRows(command, text string) bool {
	if rowCommands[command] {
		return true
	}
	code := sqlCode(text)
	if strings.Contains(strings.ToUpper(code), "RETURNING") {
		return true
	}
	return strings.Contains(strings.TrimRight(code, "; \t\r\n"), ";")
}

// sqlCode returns text with comments replaced by a space and every quoted
// literal or identifier replaced by an empty string literal.
func sqlCode(text string) string {
	var sb strings.Builder
	for i := 0; i < len(text); {
		rest := text[i:]
		switch c := text[i]; {
		case strings.HasPrefix(rest, "--"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				return sb.String()
			}
			sb.WriteByte(' ')
			i += end
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return sb.String()
			}
			sb.WriteByte(' ')
			i += end + 4
		case c == '\'' || c == '"' || c == '`':
			sb.WriteString("''")
			i = quoteEnd(text, i, c)
		case c == '$':
			tag, ok := dollarTag(rest)
			if !ok {
				sb.WriteByte(c)
				i++
				continue
			}
			end := strings.Index(rest[len(tag):], tag)
			if end < 0 {
				return sb.String()
			}
			sb.WriteString("''")
			i += 2*len(tag) + end
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// quoteEnd returns the index just past the quote closing the literal that
// opens at start. A doubled quote is an escaped quote.
func quoteEnd(s string, start int, q byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// dollarTag reports the $tag$ opener at the start of s. Positional
// parameters such as $1 are not tags.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", false
		}
	}
	return "", false
}
