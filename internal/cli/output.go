package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/queryfile"
	"github.com/roach88/qexec/internal/result"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query failure (row count mismatch, database error, failed batch call)
	ExitCommandError = 2 // Command error (bad flags, config not found, database unreachable)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeNoData      = "NO_DATA"
	ErrCodeNotEmpty    = "NOT_EMPTY"
	ErrCodeMultiple    = "MULTIPLE"
	ErrCodeInvalidMask = "INVALID_MASK"
	ErrCodeInvalid     = "INVALID_QUERY"
	ErrCodeFile        = "QUERY_FILE"
	ErrCodeQuery       = "QUERY_FAILED"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`            // "ok" or "error"
	Data   any       `json:"data,omitempty"`    // success payload
	Error  *CLIError `json:"error,omitempty"`   // error details
	CallID string    `json:"call_id,omitempty"` // correlation id of the call
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // NO_DATA, MULTIPLE, QUERY_FAILED, ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// QueryOutput is the JSON payload of a successful query.
type QueryOutput struct {
	CallID     string       `json:"call_id"`
	Kind       string       `json:"kind"`
	Rows       []result.Row `json:"rows"`
	Columns    []string     `json:"columns,omitempty"`
	DurationMS float64      `json:"duration_ms"`
}

// Outcome outputs a shaped query outcome. Text output is a tab-aligned
// table, or "(null)" when nothing was returned.
func (f *OutputFormatter) Outcome(callID string, out result.Outcome) error {
	rows := outcomeRows(out)
	var columns []string
	if out.Result != nil {
		columns = out.Result.Columns
	}

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			CallID: callID,
			Data: QueryOutput{
				CallID:     callID,
				Kind:       out.Kind.String(),
				Rows:       rows,
				Columns:    columns,
				DurationMS: float64(out.Duration.Microseconds()) / 1000,
			},
		})
	}

	if out.Kind == result.KindNull {
		fmt.Fprintln(f.Writer, "(null)")
	} else {
		writeTable(f.Writer, columns, rows)
		fmt.Fprintf(f.Writer, "(%d %s)\n", len(rows), plural(len(rows), "row", "rows"))
	}
	f.VerboseLog("call %s took %s", callID, out.Duration)
	return nil
}

// QueryError outputs a failed query with its error code.
func (f *OutputFormatter) QueryError(callID string, err error) error {
	var details any
	var qre *result.QueryResultError
	if errors.As(err, &qre) {
		details = map[string]any{"query": qre.Query, "received": qre.Received()}
	}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			CallID: callID,
			Error:  &CLIError{Code: errorCode(err), Message: err.Error(), Details: details},
		})
	}
	return f.Error(errorCode(err), err.Error(), details)
}

// errorCode classifies a query error for output.
func errorCode(err error) string {
	var fileErr *queryfile.Error
	switch {
	case result.IsNoData(err):
		return ErrCodeNoData
	case result.IsNotEmpty(err):
		return ErrCodeNotEmpty
	case result.IsMultiple(err):
		return ErrCodeMultiple
	case errors.Is(err, result.ErrInvalidMask):
		return ErrCodeInvalidMask
	case errors.As(err, &fileErr):
		return ErrCodeFile
	case errors.Is(err, query.ErrInvalidQuery), errors.Is(err, query.ErrInvalidFunction),
		query.IsStatementError(err):
		return ErrCodeInvalid
	default:
		return ErrCodeQuery
	}
}

func outcomeRows(out result.Outcome) []result.Row {
	switch out.Kind {
	case result.KindRow:
		return []result.Row{out.Row}
	case result.KindRows:
		return out.Rows
	}
	return []result.Row{}
}

// writeTable prints rows under a header. Without known columns the header
// is the sorted keys of the first row.
func writeTable(w io.Writer, columns []string, rows []result.Row) {
	if len(columns) == 0 && len(rows) > 0 {
		for k := range rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	if len(columns) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = formatCell(row[c])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
