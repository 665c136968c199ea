package store

import (
	"context"
	"fmt"
	"time"
)

// Audit event kinds, one per hook.
const (
	EventQuery   = "query"
	EventReceive = "receive"
	EventError   = "error"
)

// AuditEntry is one row of the query log.
type AuditEntry struct {
	Seq      int64
	CallID   string
	Event    string
	Query    string
	Params   []any
	Tag      string
	Rows     int
	Duration time.Duration
	Error    string
}

// WriteAudit appends an entry to the query log.
// The entry's Params are serialized to JSON; Seq must be unique.
func (s *Store) WriteAudit(ctx context.Context, e AuditEntry) error {
	paramsJSON, err := marshalParams(e.Params)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_log
		(seq, call_id, event, query, params, tag, row_count, duration_us, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.CallID,
		e.Event,
		e.Query,
		paramsJSON,
		e.Tag,
		e.Rows,
		e.Duration.Microseconds(),
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}

	return nil
}

// lastSeq returns the highest seq in the query log, or 0 when empty.
func (s *Store) lastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM query_log`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return seq, nil
}
