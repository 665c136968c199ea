package result

import "time"

// Row is a single returned row keyed by column name.
type Row map[string]any

// Result is one result set as reported by an execution client.
type Result struct {
	// Command is the leading SQL verb reported by the client (e.g. "SELECT").
	Command string

	// RowsAffected is the driver-reported affected row count, or -1 if unknown.
	RowsAffected int64

	// Columns lists column names in select order.
	Columns []string

	// Rows holds the returned rows. Never nil for a shaped result.
	Rows []Row

	// Duration is the wall-clock time spent inside the client.
	// Set by the engine after dispatch; read-only for callers.
	Duration time.Duration
}

// Len returns the number of rows, tolerating a nil receiver.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Kind identifies the shape of an Outcome.
type Kind int

const (
	// KindNull means no value (zero rows accepted, or a none-only mask).
	KindNull Kind = iota

	// KindRow means a single row.
	KindRow

	// KindRows means a row slice, possibly empty.
	KindRows
)

func (k Kind) String() string {
	switch k {
	case KindRow:
		return "row"
	case KindRows:
		return "rows"
	default:
		return "null"
	}
}

// Outcome is the shaped value of a successful query.
type Outcome struct {
	Kind Kind

	// Row is set when Kind is KindRow.
	Row Row

	// Rows is set (non-nil) when Kind is KindRows.
	Rows []Row

	// Duration copied from the underlying Result.
	Duration time.Duration

	// Result is the raw result the value was shaped from.
	Result *Result
}

// Value returns the shaped value: nil, a Row, or a []Row.
func (o Outcome) Value() any {
	switch o.Kind {
	case KindRow:
		return o.Row
	case KindRows:
		return o.Rows
	default:
		return nil
	}
}

// IsNull reports whether the outcome carries no value.
func (o Outcome) IsNull() bool {
	return o.Kind == KindNull
}
