package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/qexec/internal/events"
	"github.com/roach88/qexec/internal/result"
)

// Auditor records query events into a SQLite store's query log.
type Auditor struct {
	store  *Store
	seq    Sequencer
	logger *zap.Logger
}

// AuditorOption configures an Auditor.
type AuditorOption func(*Auditor)

// WithSequencer replaces the logical clock. Default: a Clock resumed after
// the last seq in the log.
func WithSequencer(seq Sequencer) AuditorOption {
	return func(a *Auditor) {
		a.seq = seq
	}
}

// WithAuditLogger sets the logger for audit write failures.
func WithAuditLogger(l *zap.Logger) AuditorOption {
	return func(a *Auditor) {
		a.logger = l
	}
}

// NewAuditor creates an Auditor writing to s, which must be a sqlite3 store.
func NewAuditor(ctx context.Context, s *Store, opts ...AuditorOption) (*Auditor, error) {
	if s.driver != DriverSQLite {
		return nil, fmt.Errorf("audit log requires %s, got %s", DriverSQLite, s.driver)
	}
	a := &Auditor{store: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.seq == nil {
		last, err := s.lastSeq(ctx)
		if err != nil {
			return nil, err
		}
		a.seq = NewClockAt(last)
	}
	return a, nil
}

// Hooks returns event hooks that append to the log. They never return an
// error: a failed write is logged and the query proceeds.
func (a *Auditor) Hooks() events.Hooks {
	return events.Hooks{
		Query: func(ec events.Context) error {
			a.record(entry(EventQuery, ec))
			return nil
		},
		Receive: func(rows []result.Row, res *result.Result, ec events.Context) error {
			e := entry(EventReceive, ec)
			e.Rows = len(rows)
			if res != nil {
				e.Duration = res.Duration
			}
			a.record(e)
			return nil
		},
		Error: func(err error, ec events.Context) {
			e := entry(EventError, ec)
			e.Error = err.Error()
			a.record(e)
		},
	}
}

func entry(event string, ec events.Context) AuditEntry {
	return AuditEntry{
		CallID: ec.ID,
		Event:  event,
		Query:  ec.Text,
		Params: ec.Params,
		Tag:    formatTag(ec.Tag),
	}
}

func (a *Auditor) record(e AuditEntry) {
	e.Seq = a.seq.Next()
	if err := a.store.WriteAudit(context.Background(), e); err != nil {
		a.logger.Warn("audit write failed",
			zap.String("event", e.Event),
			zap.String("id", e.CallID),
			zap.Error(err))
	}
}
