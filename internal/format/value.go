package format

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SQLer is implemented by types that render themselves as SQL.
// The returned text is inserted without quoting or escaping.
type SQLer interface {
	SQL() (string, error)
}

// timeLayout matches the text form Postgres accepts for timestamptz.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// maxDepth bounds recursion through nested arrays and Valuers.
const maxDepth = 32

// Value renders v as an SQL literal.
func Value(v any) (string, error) {
	return value(v, 0)
}

func value(v any, depth int) (string, error) {
	if depth > maxDepth {
		return "", errors.Errorf("value nesting exceeds %d levels", maxDepth)
	}

	switch val := v.(type) {
	case nil:
		return "null", nil
	case SQLer:
		if isNilPointer(v) {
			return "null", nil
		}
		s, err := val.SQL()
		if err != nil {
			return "", errors.Wrapf(err, "custom formatting of %T", v)
		}
		return s, nil
	case driver.Valuer:
		if isNilPointer(v) {
			return "null", nil
		}
		dv, err := val.Value()
		if err != nil {
			return "", errors.Wrapf(err, "driver value of %T", v)
		}
		return value(dv, depth+1)
	case string:
		return Quote(val), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case []byte:
		return `'\x` + hex.EncodeToString(val) + "'", nil
	case time.Time:
		return Quote(val.Format(timeLayout)), nil
	case float32:
		return formatFloat(float64(val)), nil
	case float64:
		return formatFloat(val), nil
	case json.RawMessage:
		return Quote(string(val)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float()), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.String:
		return Quote(rv.String()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "null", nil
		}
		return value(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "null", nil
		}
		return array(rv, depth)
	case reflect.Map, reflect.Struct:
		return jsonValue(v)
	default:
		return "", errors.Errorf("cannot format value of type %T", v)
	}
}

// array renders a slice as array[...]; an empty slice is the '{}' literal.
func array(rv reflect.Value, depth int) (string, error) {
	if rv.Len() == 0 {
		return "'{}'", nil
	}
	parts := make([]string, rv.Len())
	for i := range parts {
		s, err := value(rv.Index(i).Interface(), depth+1)
		if err != nil {
			return "", errors.Wrapf(err, "array element %d", i)
		}
		parts[i] = s
	}
	return "array[" + strings.Join(parts, ",") + "]", nil
}

// csv renders a slice as a comma-separated list, any other value as itself.
func csv(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if _, ok := v.([]byte); ok {
		return Value(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Value(v)
	}
	parts := make([]string, rv.Len())
	for i := range parts {
		s, err := Value(rv.Index(i).Interface())
		if err != nil {
			return "", errors.Wrapf(err, "list element %d", i)
		}
		parts[i] = s
	}
	return strings.Join(parts, ","), nil
}

func jsonValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "json formatting of %T", v)
	}
	return Quote(string(b)), nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "'NaN'"
	case math.IsInf(f, 1):
		return "'+Infinity'"
	case math.IsInf(f, -1):
		return "'-Infinity'"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Quote returns s as a single-quoted SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Identifier returns s as a double-quoted SQL identifier. "*" is kept as is.
func Identifier(s string) string {
	if s == "*" {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
