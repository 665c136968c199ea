package batch

import (
	"time"

	"github.com/roach88/qexec/internal/result"
)

// Report is the outcome of running a batch.
type Report struct {
	// Name is the batch name.
	Name string `json:"name"`

	// Pass is true when every call met its expectation.
	Pass bool `json:"pass"`

	// Calls holds one entry per call, in file order.
	Calls []CallReport `json:"calls"`

	// Errors holds batch-level failures such as a failed setup statement.
	Errors []string `json:"errors,omitempty"`
}

// CallReport is the outcome of one call.
type CallReport struct {
	Name string `json:"name"`

	// ID is the correlation id of the call.
	ID string `json:"id,omitempty"`

	// Kind is the shape of a successful outcome: null, row or rows.
	Kind string `json:"kind,omitempty"`

	// Rows holds the shaped rows; a single row is a one-element slice.
	Rows []result.Row `json:"rows,omitempty"`

	// Error is the call's error message, if it failed.
	Error string `json:"error,omitempty"`

	Duration time.Duration `json:"duration,omitempty"`

	// Pass indicates the call met its expectation.
	Pass bool `json:"pass"`

	// Failures lists unmet expectations.
	Failures []string `json:"failures,omitempty"`
}

// NewReport creates a passing report for the named batch.
func NewReport(name string) *Report {
	return &Report{
		Name:   name,
		Pass:   true,
		Calls:  []CallReport{},
		Errors: []string{},
	}
}

// AddError adds a batch-level error and marks the report as failed.
func (r *Report) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Failed returns the reports of calls that missed their expectation.
func (r *Report) Failed() []CallReport {
	var failed []CallReport
	for _, c := range r.Calls {
		if !c.Pass {
			failed = append(failed, c)
		}
	}
	return failed
}

// record fills the outcome fields of c from a finished call.
func (c *CallReport) record(out result.Outcome, err error) {
	if err != nil {
		c.Error = err.Error()
		return
	}
	c.Kind = out.Kind.String()
	c.Duration = out.Duration
	switch out.Kind {
	case result.KindRow:
		c.Rows = []result.Row{out.Row}
	case result.KindRows:
		c.Rows = out.Rows
	}
}
