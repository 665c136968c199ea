package testutil

import (
	"context"
	"sync"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// RecordingClient is an execution client that records every statement and
// answers with a fixed response. It implements engine.Client.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordingClient struct {
	mu      sync.Mutex
	stmts   []query.Statement
	results []*result.Result
	err     error
}

// NewRecordingClient returns a client answering every call with one result
// set holding rows.
func NewRecordingClient(rows ...result.Row) *RecordingClient {
	if rows == nil {
		rows = []result.Row{}
	}
	return &RecordingClient{results: []*result.Result{{Command: "SELECT", RowsAffected: int64(len(rows)), Rows: rows}}}
}

// NewFailingClient returns a client failing every call with err.
func NewFailingClient(err error) *RecordingClient {
	return &RecordingClient{err: err}
}

// Exec records stmt and returns the fixed response.
func (c *RecordingClient) Exec(_ context.Context, stmt query.Statement) ([]*result.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stmts = append(c.stmts, stmt)
	if c.err != nil {
		return nil, c.err
	}
	return c.results, nil
}

// Statements returns a copy of the recorded statements.
func (c *RecordingClient) Statements() []query.Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]query.Statement(nil), c.stmts...)
}
