package result

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes a mismatch between returned rows and the mask.
type ErrorCode string

const (
	// ErrCodeNoData indicates rows were expected but none were returned.
	ErrCodeNoData ErrorCode = "NO_DATA"

	// ErrCodeNotEmpty indicates rows were returned but none were expected.
	ErrCodeNotEmpty ErrorCode = "NOT_EMPTY"

	// ErrCodeMultiple indicates several rows were returned where one was expected.
	ErrCodeMultiple ErrorCode = "MULTIPLE"
)

var codeMessages = map[ErrorCode]string{
	ErrCodeNoData:   "no data returned from the query",
	ErrCodeNotEmpty: "no return data was expected",
	ErrCodeMultiple: "multiple rows were not expected",
}

// QueryResultError reports a row count that contradicts the caller's mask.
//
// It carries the offending result along with the query text and parameters
// that produced it, for diagnostics.
type QueryResultError struct {
	// Code identifies the mismatch.
	Code ErrorCode

	// Result is the raw result that failed shaping.
	Result *Result

	// Query is the executed text.
	Query string

	// Params are the parameters sent with Query, if any.
	Params []any
}

// NewQueryResultError creates a QueryResultError for the given code.
func NewQueryResultError(code ErrorCode, res *Result, query string, params []any) *QueryResultError {
	return &QueryResultError{Code: code, Result: res, Query: query, Params: params}
}

// Error implements the error interface.
func (e *QueryResultError) Error() string {
	msg := codeMessages[e.Code]
	if msg == "" {
		msg = "unexpected query result"
	}
	if e.Code == ErrCodeMultiple {
		return fmt.Sprintf("%s: %s (%d rows)", e.Code, msg, e.Result.Len())
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Received returns the number of rows in the offending result.
func (e *QueryResultError) Received() int {
	return e.Result.Len()
}

func hasCode(err error, code ErrorCode) bool {
	var qe *QueryResultError
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsNoData returns true if err is a QueryResultError with ErrCodeNoData.
func IsNoData(err error) bool { return hasCode(err, ErrCodeNoData) }

// IsNotEmpty returns true if err is a QueryResultError with ErrCodeNotEmpty.
func IsNotEmpty(err error) bool { return hasCode(err, ErrCodeNotEmpty) }

// IsMultiple returns true if err is a QueryResultError with ErrCodeMultiple.
func IsMultiple(err error) bool { return hasCode(err, ErrCodeMultiple) }
