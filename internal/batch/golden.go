package batch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qexec/internal/result"
)

// Snapshot is the stable part of a report used for golden comparison.
// Correlation ids and durations vary between runs and are left out.
type Snapshot struct {
	Batch  string         `json:"batch"`
	Pass   bool           `json:"pass"`
	Errors []string       `json:"errors,omitempty"`
	Calls  []CallSnapshot `json:"calls"`
}

// CallSnapshot is the stable part of a CallReport.
type CallSnapshot struct {
	Name     string       `json:"name"`
	Kind     string       `json:"kind,omitempty"`
	Rows     []result.Row `json:"rows,omitempty"`
	Error    string       `json:"error,omitempty"`
	Pass     bool         `json:"pass"`
	Failures []string     `json:"failures,omitempty"`
}

// NewSnapshot builds the snapshot of r.
func NewSnapshot(r *Report) Snapshot {
	s := Snapshot{
		Batch:  r.Name,
		Pass:   r.Pass,
		Errors: r.Errors,
		Calls:  make([]CallSnapshot, len(r.Calls)),
	}
	for i, c := range r.Calls {
		s.Calls[i] = CallSnapshot{
			Name:     c.Name,
			Kind:     c.Kind,
			Rows:     c.Rows,
			Error:    c.Error,
			Pass:     c.Pass,
			Failures: c.Failures,
		}
	}
	return s
}

// MarshalSnapshot renders the snapshot of r as indented JSON with a
// trailing newline. Row keys are sorted.
func MarshalSnapshot(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(NewSnapshot(r), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs b with r and compares the report snapshot against
// testdata/golden/{b.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/batch -update
func RunWithGolden(t *testing.T, r *Runner, b *Batch) (*Report, error) {
	t.Helper()

	report, err := r.Run(context.Background(), b)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, b.Name, report); err != nil {
		return nil, err
	}
	return report, nil
}

// AssertGolden compares the snapshot of an existing report against the
// golden file for name.
func AssertGolden(t *testing.T, name string, report *Report) error {
	t.Helper()

	data, err := MarshalSnapshot(report)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
