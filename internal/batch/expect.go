package batch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/qexec/internal/result"
)

// ExpectationError is returned when a call's outcome misses its expectation.
type ExpectationError struct {
	Call     string // Call name
	Type     string // Expectation type: error, rows, row
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "call %s: %s expectation failed\n", e.Call, e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// errorCodes maps expectation error codes to their matchers.
var errorCodes = map[string]func(error) bool{
	"no_data":      result.IsNoData,
	"not_empty":    result.IsNotEmpty,
	"multiple":     result.IsMultiple,
	"invalid_mask": func(err error) bool { return errors.Is(err, result.ErrInvalidMask) },
}

// check compares a call outcome with its expectation. A nil expectation
// requires success.
func check(name string, exp *Expect, out result.Outcome, err error) []error {
	if exp == nil || exp.Error == "" {
		if err != nil {
			return []error{&ExpectationError{
				Call:     name,
				Type:     "error",
				Expected: "success",
				Actual:   err.Error(),
			}}
		}
	}
	if exp == nil {
		return nil
	}

	if exp.Error != "" {
		if e := checkError(name, exp.Error, err); e != nil {
			return []error{e}
		}
		return nil
	}

	var failures []error
	if exp.Rows != nil {
		if n := outcomeRows(out); n != *exp.Rows {
			failures = append(failures, &ExpectationError{
				Call:     name,
				Type:     "rows",
				Expected: fmt.Sprintf("%d rows", *exp.Rows),
				Actual:   fmt.Sprintf("%d rows", n),
			})
		}
	}
	if exp.Row != nil {
		if e := checkRow(name, exp.Row, out); e != nil {
			failures = append(failures, e)
		}
	}
	return failures
}

func checkError(name, want string, err error) error {
	if err == nil {
		return &ExpectationError{Call: name, Type: "error", Expected: want, Actual: "success"}
	}
	if match, ok := errorCodes[strings.ToLower(want)]; ok {
		if match(err) {
			return nil
		}
	} else if strings.Contains(err.Error(), want) {
		return nil
	}
	return &ExpectationError{Call: name, Type: "error", Expected: want, Actual: err.Error()}
}

// checkRow matches want as a subset of the single returned row. Values are
// compared by their printed form so YAML ints match driver int64s.
func checkRow(name string, want map[string]any, out result.Outcome) error {
	row := out.Row
	if out.Kind == result.KindRows && len(out.Rows) == 1 {
		row = out.Rows[0]
	}
	if row == nil {
		return &ExpectationError{
			Call:     name,
			Type:     "row",
			Expected: formatRow(want),
			Actual:   fmt.Sprintf("%s with %d rows", out.Kind, outcomeRows(out)),
		}
	}
	for k, v := range want {
		got, ok := row[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(v) {
			return &ExpectationError{
				Call:     name,
				Type:     "row",
				Expected: formatRow(want),
				Actual:   formatRow(row),
			}
		}
	}
	return nil
}

func outcomeRows(out result.Outcome) int {
	switch out.Kind {
	case result.KindRow:
		return 1
	case result.KindRows:
		return len(out.Rows)
	}
	return 0
}

// formatRow prints a row with sorted keys.
func formatRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, row[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
