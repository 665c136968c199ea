// Package config loads qexec configuration from YAML, validated and
// defaulted by an embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the complete qexec configuration.
type Config struct {
	Driver           string           `json:"driver" yaml:"driver"`
	DSN              string           `json:"dsn" yaml:"dsn"`
	CapSQL           bool             `json:"cap_sql" yaml:"cap_sql"`
	NativeFormatting bool             `json:"native_formatting" yaml:"native_formatting"`
	Log              LogConfig        `json:"log" yaml:"log"`
	Audit            AuditConfig      `json:"audit" yaml:"audit"`
	QueryFiles       QueryFilesConfig `json:"query_files" yaml:"query_files"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level    string `json:"level" yaml:"level"`
	Encoding string `json:"encoding" yaml:"encoding"`
}

// AuditConfig controls the SQLite query log.
type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// QueryFilesConfig controls loading of SQL files.
type QueryFilesConfig struct {
	Minify bool `json:"minify" yaml:"minify"`
	Watch  bool `json:"watch" yaml:"watch"`
}

// AuditPath returns the audit database path, falling back to the DSN of a
// sqlite3 configuration. Empty means no audit log can be kept.
func (c *Config) AuditPath() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	if c.Driver == "sqlite3" {
		return c.DSN
	}
	return ""
}

// ValidationError reports a configuration value rejected by the schema.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid config: %s", e.Message)
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Path, e.Message)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		// The embedded schema always yields a complete default.
		panic(fmt.Sprintf("config: default: %v", err))
	}
	return cfg
}

// Load reads the YAML file at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates YAML data against the schema and fills in defaults.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, validationError(err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, validationError(err)
	}
	return &cfg, nil
}

// validationError reduces a CUE error to its first failure.
func validationError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &ValidationError{
		Path:    strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
}
