package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalParams converts query parameters to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled so SQL fragments stay readable.
// Byte slices are stored as strings; values json cannot encode fall back to
// their %v rendering.
func marshalParams(params []any) (string, error) {
	if len(params) == 0 {
		return "[]", nil
	}

	out := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case []byte:
			out[i] = string(v)
		case fmt.Stringer:
			out[i] = v.String()
		default:
			if _, err := json.Marshal(v); err != nil {
				out[i] = fmt.Sprintf("%v", v)
				continue
			}
			out[i] = v
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalParams parses JSON TEXT back into parameters.
// Numbers are kept as json.Number to avoid float64 precision loss.
func unmarshalParams(data string) ([]any, error) {
	if data == "" || data == "[]" {
		return []any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var params []any
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}

// formatTag renders a diagnostic tag for storage.
func formatTag(tag any) string {
	switch v := tag.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
