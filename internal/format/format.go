package format

import (
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Formatter substitutes values into query text.
type Formatter interface {
	// FormatQuery replaces placeholders in text with formatted values.
	FormatQuery(text string, values any) (string, error)

	// FormatFunction renders a function call selecting all its columns.
	FormatFunction(name string, values any, capitalize bool) (string, error)
}

// Default is the Postgres-style formatter.
var Default Formatter = pgFormatter{}

type pgFormatter struct{}

func (pgFormatter) FormatQuery(text string, values any) (string, error) {
	return FormatQuery(text, values)
}

func (pgFormatter) FormatFunction(name string, values any, capitalize bool) (string, error) {
	return FormatFunction(name, values, capitalize)
}

// Error reports a formatting failure.
type Error struct {
	// Op is "query" or "function".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "format " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsFormatError returns true if err is a formatting Error.
func IsFormatError(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// FormatFunction renders "select * from name(v1,v2,...)".
//
// A slice of values becomes the argument list; any other non-nil value is a
// single argument. capitalize selects the upper-case prefix.
func FormatFunction(name string, values any, capitalize bool) (string, error) {
	if name == "" {
		return "", &Error{Op: "function", Err: errors.New("function name is empty")}
	}
	args, err := csv(values)
	if err != nil {
		return "", &Error{Op: "function", Err: errors.Wrapf(err, "arguments of %s", name)}
	}
	return FunctionPrefix(capitalize) + " " + name + "(" + args + ")", nil
}

// FunctionPrefix returns the select prefix of a function call.
func FunctionPrefix(capitalize bool) string {
	if capitalize {
		return "SELECT * FROM"
	}
	return "select * from"
}

// FormatQuery substitutes values into text.
//
// A map with string keys or a struct selects named placeholders:
// ${name}, $(name), $<name>, $[name] and $/name/, where name may be a dotted
// path into nested values or "this" for the value itself. A slice selects
// positional placeholders $1..$N. Any other non-nil value is $1.
//
// Placeholders accept a filter suffix: ^ or :raw (unescaped text),
// ~ or :name (quoted identifier), :json, :csv or :list, :value.
//
// nil values leave text unchanged.
func FormatQuery(text string, values any) (string, error) {
	if values == nil {
		return text, nil
	}
	var (
		out string
		err error
	)
	if isNamed(values) {
		out, err = formatNamed(text, reflect.ValueOf(values))
	} else {
		out, err = formatPositional(text, positional(values))
	}
	if err != nil {
		return "", &Error{Op: "query", Err: err}
	}
	return out, nil
}

func isNamed(values any) bool {
	switch values.(type) {
	case time.Time, driver.Valuer, SQLer:
		return false
	}
	rv := reflect.Indirect(reflect.ValueOf(values))
	switch rv.Kind() {
	case reflect.Map:
		return rv.Type().Key().Kind() == reflect.String
	case reflect.Struct:
		return true
	}
	return false
}

func positional(values any) []any {
	if _, ok := values.([]byte); ok {
		return []any{values}
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{values}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// filter names accepted after a colon.
var colonFilters = map[string]string{
	"raw":   "raw",
	"name":  "name",
	"json":  "json",
	"csv":   "csv",
	"list":  "csv",
	"value": "value",
}

// readFilter parses a filter suffix at s[0:], returning the filter and its
// length. An unknown suffix is not a filter.
func readFilter(s string) (string, int) {
	if s == "" {
		return "", 0
	}
	switch s[0] {
	case '^':
		return "raw", 1
	case '~':
		return "name", 1
	case ':':
		end := 1
		for end < len(s) && isLetter(s[end]) {
			end++
		}
		if f, ok := colonFilters[s[1:end]]; ok && (end == len(s) || !isWordChar(s[end])) {
			return f, end
		}
	}
	return "", 0
}

func formatPositional(text string, values []any) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '$' || i+1 >= len(text) || text[i+1] < '1' || text[i+1] > '9' {
			sb.WriteByte(c)
			continue
		}
		end := i + 1
		for end < len(text) && isDigit(text[end]) {
			end++
		}
		if end-(i+1) > 5 {
			sb.WriteString(text[i:end])
			i = end - 1
			continue
		}
		idx, _ := strconv.Atoi(text[i+1 : end])
		filter, n := readFilter(text[end:])
		if idx > len(values) {
			return "", errors.Errorf("variable $%d out of range: parameters array length is %d", idx, len(values))
		}
		s, err := applyFilter(values[idx-1], filter)
		if err != nil {
			return "", errors.Wrapf(err, "variable $%d", idx)
		}
		sb.WriteString(s)
		i = end + n - 1
	}
	return sb.String(), nil
}

var closers = map[byte]byte{'{': '}', '(': ')', '<': '>', '[': ']', '/': '/'}

func formatNamed(text string, root reflect.Value) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '$' || i+1 >= len(text) {
			sb.WriteByte(c)
			continue
		}
		closer, ok := closers[text[i+1]]
		if !ok {
			sb.WriteByte(c)
			continue
		}
		j := strings.IndexByte(text[i+2:], closer)
		if j < 0 {
			sb.WriteByte(c)
			continue
		}
		inner := strings.TrimSpace(text[i+2 : i+2+j])
		name, filter, ok := splitNamed(inner)
		if !ok {
			sb.WriteByte(c)
			continue
		}
		v, err := lookup(root, name)
		if err != nil {
			return "", err
		}
		s, err := applyFilter(v, filter)
		if err != nil {
			return "", errors.Wrapf(err, "property %q", name)
		}
		sb.WriteString(s)
		i = i + 2 + j
	}
	return sb.String(), nil
}

// splitNamed separates "name:filter", "name^" or "name~". ok is false when
// inner is not a valid placeholder body.
func splitNamed(inner string) (name, filter string, ok bool) {
	name = inner
	for k := 0; k < len(inner); k++ {
		if !isNameChar(inner[k]) {
			f, n := readFilter(inner[k:])
			if n == 0 || k+n != len(inner) {
				return "", "", false
			}
			name, filter = inner[:k], f
			break
		}
	}
	return name, filter, name != ""
}

// lookup resolves a dotted property path against root.
func lookup(root reflect.Value, path string) (any, error) {
	if path == "this" {
		return root.Interface(), nil
	}
	cur := root
	for _, part := range strings.Split(path, ".") {
		cur = reflect.Indirect(cur)
		for cur.Kind() == reflect.Interface && !cur.IsNil() {
			cur = reflect.Indirect(cur.Elem())
		}
		var next reflect.Value
		switch cur.Kind() {
		case reflect.Map:
			if cur.Type().Key().Kind() == reflect.String {
				next = cur.MapIndex(reflect.ValueOf(part).Convert(cur.Type().Key()))
			}
		case reflect.Struct:
			next = structField(cur, part)
		}
		if !next.IsValid() {
			return nil, errors.Errorf("property %q doesn't exist", path)
		}
		cur = next
	}
	if cur.Kind() == reflect.Interface && cur.IsNil() {
		return nil, nil
	}
	return cur.Interface(), nil
}

// structField finds an exported field by `db` tag, then by name.
func structField(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("db"), ",")[0]
		if tag == name || (tag == "" && f.Name == name) {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func applyFilter(v any, filter string) (string, error) {
	switch filter {
	case "raw":
		if v == nil {
			return "null", nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return Value(v)
	case "name":
		s, ok := v.(string)
		if !ok || s == "" {
			return "", errors.Errorf("invalid sql name: %v", v)
		}
		return Identifier(s), nil
	case "json":
		if v == nil {
			return "null", nil
		}
		return jsonValue(v)
	case "csv":
		return csv(v)
	default:
		return Value(v)
	}
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isWordChar(c byte) bool { return isLetter(c) || isDigit(c) || c == '_' }

func isNameChar(c byte) bool { return isWordChar(c) || c == '$' || c == '.' }
