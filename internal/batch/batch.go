package batch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/queryfile"
	"github.com/roach88/qexec/internal/result"
)

// Batch is a named list of calls sharing one client.
type Batch struct {
	// Name identifies the batch in reports and golden files.
	Name string `yaml:"name"`

	// Description explains what the batch checks.
	Description string `yaml:"description,omitempty"`

	// Parallel is the maximum number of calls in flight. Zero means 1.
	Parallel int `yaml:"parallel,omitempty"`

	// Setup statements run sequentially before any call.
	Setup []string `yaml:"setup,omitempty"`

	// Calls are independent queries.
	Calls []Call `yaml:"calls"`

	// dir resolves relative query file paths.
	dir string
}

// Call is one query of a batch. Exactly one of Query, File or Function is
// set.
type Call struct {
	Name string `yaml:"name"`

	// Query is literal SQL text.
	Query string `yaml:"query,omitempty"`

	// Prepared names a server-side prepared statement for Query.
	Prepared string `yaml:"prepared,omitempty"`

	// Parameterized sends Query with separate parameters.
	Parameterized bool `yaml:"parameterized,omitempty"`

	// File is a SQL file path, relative to the batch file.
	File string `yaml:"file,omitempty"`

	// Function is a database function name.
	Function string `yaml:"function,omitempty"`

	// Values are a list for positional or a map for named placeholders.
	Values any `yaml:"values,omitempty"`

	// Mask is a cardinality name ("one", "many-or-none", "any") or number.
	// Empty uses the default.
	Mask string `yaml:"mask,omitempty"`

	// Expect checks the outcome. Nil means the call must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a call.
type Expect struct {
	// Rows is the expected number of shaped rows.
	Rows *int `yaml:"rows,omitempty"`

	// Row is a subset of the expected single row.
	Row map[string]any `yaml:"row,omitempty"`

	// Error is an error code (no_data, not_empty, multiple, invalid_mask)
	// or a substring of the error message.
	Error string `yaml:"error,omitempty"`
}

// Load reads and parses a batch YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func Load(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, err
	}
	b.dir = filepath.Dir(path)
	return b, nil
}

// Parse parses batch YAML. Relative file paths resolve against the
// working directory.
func Parse(data []byte) (*Batch, error) {
	var b Batch
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateBatch(&b); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}
	return &b, nil
}

// validateBatch checks that required fields are present and valid.
func validateBatch(b *Batch) error {
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(b.Calls) == 0 {
		return fmt.Errorf("calls list is required and must be non-empty")
	}
	if b.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative")
	}

	seen := make(map[string]bool, len(b.Calls))
	for i, c := range b.Calls {
		if c.Name == "" {
			return fmt.Errorf("call %d: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("call %q: duplicate name", c.Name)
		}
		seen[c.Name] = true

		sources := 0
		for _, s := range []string{c.Query, c.File, c.Function} {
			if s != "" {
				sources++
			}
		}
		if sources != 1 {
			return fmt.Errorf("call %q: exactly one of query, file or function is required", c.Name)
		}
		if (c.Prepared != "" || c.Parameterized) && c.Query == "" {
			return fmt.Errorf("call %q: prepared and parameterized apply to query only", c.Name)
		}
		if c.Mask != "" {
			if _, err := result.ParseMask(c.Mask); err != nil {
				return fmt.Errorf("call %q: %w", c.Name, err)
			}
		}
	}
	return nil
}

// descriptor builds the query descriptor of c.
func (c Call) descriptor(dir string, opts queryfile.Options) query.Descriptor {
	switch {
	case c.Function != "":
		return query.Function(c.Function)
	case c.File != "":
		path := c.File
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		return query.FromFile(queryfile.New(path, opts))
	case c.Prepared != "":
		return query.Prepared(c.Prepared, c.Query)
	case c.Parameterized:
		return query.Parameterized(c.Query)
	default:
		return query.Raw(c.Query)
	}
}

// masks returns the mask arguments of c: none when unset.
func (c Call) masks() []result.Mask {
	if c.Mask == "" {
		return nil
	}
	m, _ := result.ParseMask(c.Mask)
	return []result.Mask{m}
}
