package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReadAudit returns every entry logged for a call id, ordered by seq ASC.
//
// Returns an empty slice (not nil) if the id has no entries.
func (s *Store) ReadAudit(ctx context.Context, callID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, call_id, event, query, params, tag, row_count, duration_us, error
		FROM query_log
		WHERE call_id = ?
		ORDER BY seq ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return scanAuditEntries(rows)
}

// ReadRecentAudit returns the last limit entries of the log, oldest first.
func (s *Store) ReadRecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, call_id, event, query, params, tag, row_count, duration_us, error
		FROM (
			SELECT * FROM query_log ORDER BY seq DESC LIMIT ?
		)
		ORDER BY seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit: %w", err)
	}
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows *sql.Rows) ([]AuditEntry, error) {
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return entries, nil
}

// scanAuditEntry scans a row into an AuditEntry struct.
func scanAuditEntry(rows *sql.Rows) (AuditEntry, error) {
	var e AuditEntry
	var paramsJSON string
	var durationUS int64

	if err := rows.Scan(
		&e.Seq, &e.CallID, &e.Event, &e.Query, &paramsJSON,
		&e.Tag, &e.Rows, &durationUS, &e.Error,
	); err != nil {
		return AuditEntry{}, fmt.Errorf("scan audit entry: %w", err)
	}

	params, err := unmarshalParams(paramsJSON)
	if err != nil {
		return AuditEntry{}, err
	}
	e.Params = params
	e.Duration = time.Duration(durationUS) * time.Microsecond
	return e, nil
}
