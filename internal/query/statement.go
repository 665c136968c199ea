package query

import (
	"errors"
	"fmt"
)

// Statement is the parsed, executable form of a native-formatting query.
type Statement struct {
	// Name is the prepared statement name, empty for unnamed queries.
	Name string

	// Text is the SQL with driver placeholders.
	Text string

	// Params are sent to the driver separately from Text.
	Params []any
}

// StatementError reports an invalid PreparedStatement or ParameterizedQuery.
type StatementError struct {
	// Name of the prepared statement, empty for parameterized queries.
	Name string

	// Field is the offending property.
	Field string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any (e.g. a query file error).
	Err error
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	prefix := "parameterized query"
	if e.Name != "" {
		prefix = fmt.Sprintf("prepared statement %q", e.Name)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", prefix, e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Field, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StatementError) Unwrap() error {
	return e.Err
}

// IsStatementError returns true if err is a StatementError.
func IsStatementError(err error) bool {
	var se *StatementError
	return errors.As(err, &se)
}

// PreparedStatement is a named statement the server prepares once per
// connection and reuses. It always uses native parameter formatting.
type PreparedStatement struct {
	// Name identifies the statement on the server. Required.
	Name string

	// Text is the statement SQL. Ignored when File is set.
	Text string

	// File, when set, supplies Text from a query file.
	File Preparable

	// Values are the statement parameters.
	Values []any
}

// Prepared returns a named prepared statement descriptor.
func Prepared(name, text string, values ...any) *PreparedStatement {
	ps := &PreparedStatement{Name: name, Text: text}
	if len(values) > 0 {
		ps.Values = values
	}
	return ps
}

// Parse validates the statement and returns its executable form.
func (ps *PreparedStatement) Parse() (Statement, error) {
	if ps.Name == "" {
		return Statement{}, &StatementError{Field: "name", Message: "must be a non-empty text string"}
	}
	text, err := resolveText(ps.Text, ps.File)
	if err != nil {
		return Statement{}, &StatementError{Name: ps.Name, Field: "text", Message: "query file failed", Err: err}
	}
	if text == "" {
		return Statement{}, &StatementError{Name: ps.Name, Field: "text", Message: "must be a non-empty text string"}
	}
	return Statement{Name: ps.Name, Text: text, Params: ps.Values}, nil
}

// ParameterizedQuery is query text sent with separate parameters, without a
// server-side name. It always uses native parameter formatting.
type ParameterizedQuery struct {
	// Text is the query SQL. Ignored when File is set.
	Text string

	// File, when set, supplies Text from a query file.
	File Preparable

	// Values are the query parameters.
	Values []any
}

// Parameterized returns a parameterized query descriptor.
func Parameterized(text string, values ...any) *ParameterizedQuery {
	pq := &ParameterizedQuery{Text: text}
	if len(values) > 0 {
		pq.Values = values
	}
	return pq
}

// Parse validates the query and returns its executable form.
func (pq *ParameterizedQuery) Parse() (Statement, error) {
	text, err := resolveText(pq.Text, pq.File)
	if err != nil {
		return Statement{}, &StatementError{Field: "text", Message: "query file failed", Err: err}
	}
	if text == "" {
		return Statement{}, &StatementError{Field: "text", Message: "must be a non-empty text string"}
	}
	return Statement{Text: text, Params: pq.Values}, nil
}

func resolveText(text string, file Preparable) (string, error) {
	if file == nil {
		return text, nil
	}
	file.Prepare()
	if err := file.Err(); err != nil {
		return "", err
	}
	return file.SQL(), nil
}
