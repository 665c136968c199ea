package query

import (
	"errors"
	"reflect"
)

var (
	// ErrInvalidQuery is returned for an absent, empty or unusable query.
	ErrInvalidQuery = errors.New("invalid query format")

	// ErrInvalidFunction is returned for a function call without a name.
	ErrInvalidFunction = errors.New("invalid function name")
)

// Normalized is a descriptor reduced to executable text and parameters.
type Normalized struct {
	// Text is the query text, the function name when IsFunc is set, or the
	// best available diagnostic text when normalization failed.
	Text string

	// Name is the prepared statement name, if any.
	Name string

	// Params are the driver parameters when Native is set.
	Params []any

	// Native means the driver receives Params separately and Text must not
	// be formatted.
	Native bool

	// IsFunc means Text is a function name to be rendered as a call.
	IsFunc bool

	// Values are the values to format into Text when Native is not set:
	// the function's own values when present, else the explicit values.
	Values any
}

// Normalize converts d into executable form.
//
// values are the caller's explicit values; native selects driver-side
// parameter formatting for plain text. Prepared statements and parameterized
// queries always use native formatting and never take values that would
// replace their own.
//
// On error the returned Normalized still carries diagnostic text: for a
// query file that failed to prepare, the file's display identifier.
func Normalize(d Descriptor, values any, native bool) (Normalized, error) {
	n := Normalized{Native: native, Values: values}
	if native {
		n.Params = Params(values)
	}

	switch q := d.(type) {
	case nil:
		return n, ErrInvalidQuery

	case Text:
		n.Text = string(q)
		if n.Text == "" {
			return n, ErrInvalidQuery
		}
		return n, nil

	case File:
		if q.Handle == nil || isNilPointer(q.Handle) {
			return n, ErrInvalidQuery
		}
		q.Handle.Prepare()
		if err := q.Handle.Err(); err != nil {
			n.Text = q.Handle.File()
			return n, err
		}
		n.Text = q.Handle.SQL()
		if n.Text == "" {
			return n, ErrInvalidQuery
		}
		return n, nil

	case Func:
		n.IsFunc = true
		n.Native = false
		n.Params = nil
		n.Text = q.Name
		if q.Values != nil {
			n.Values = q.Values
		}
		if q.Name == "" {
			return n, ErrInvalidFunction
		}
		return n, nil

	case *PreparedStatement:
		if q == nil {
			return n, ErrInvalidQuery
		}
		ps := *q
		if ps.Values == nil && values != nil {
			ps.Values = Params(values)
		}
		return fromStatement(n, ps.Text, ps.Values)(ps.Parse())

	case *ParameterizedQuery:
		if q == nil {
			return n, ErrInvalidQuery
		}
		pq := *q
		if pq.Values == nil && values != nil {
			pq.Values = Params(values)
		}
		return fromStatement(n, pq.Text, pq.Values)(pq.Parse())

	default:
		return n, ErrInvalidQuery
	}
}

// fromStatement folds a Parse outcome into n. The raw text and values are
// kept for diagnostics when parsing fails.
func fromStatement(n Normalized, text string, values []any) func(Statement, error) (Normalized, error) {
	return func(st Statement, err error) (Normalized, error) {
		n.Native = true
		n.Values = nil
		if err != nil {
			n.Text = text
			n.Params = values
			return n, err
		}
		n.Name = st.Name
		n.Text = st.Text
		n.Params = st.Params
		return n, nil
	}
}

// Params converts explicit values into driver parameters.
//
// nil yields nil, []any is returned as is, other slices and arrays (except
// []byte) are copied element-wise, and any other value becomes a single
// parameter.
func Params(values any) []any {
	switch v := values.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []byte:
		return []any{v}
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{values}
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
