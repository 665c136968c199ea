package cli

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qexec/internal/config"
	"github.com/roach88/qexec/internal/engine"
	"github.com/roach88/qexec/internal/events"
	"github.com/roach88/qexec/internal/pgclient"
	"github.com/roach88/qexec/internal/queryfile"
	"github.com/roach88/qexec/internal/store"
)

// driverPgx selects the native pgx client instead of database/sql.
const driverPgx = "pgx"

// session is the configured engine and client shared by a command run.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	eng    *engine.Engine
	client engine.Client

	// audit is the query log store, nil when auditing is off.
	audit *store.Store

	closers []func() error
}

// sessionOptions are per-command overrides of the configuration.
type sessionOptions struct {
	native bool
	audit  bool
}

// openSession loads configuration, applies flag overrides and connects.
// Diagnostics are logged to logOut.
func openSession(ctx context.Context, opts *RootOptions, so sessionOptions, logOut io.Writer) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if so.native {
		cfg.NativeFormatting = true
	}
	if so.audit {
		cfg.Audit.Enabled = true
	}

	logger, err := newLogger(cfg.Log, opts.Verbose, logOut)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}

	s := &session{cfg: cfg, logger: logger}
	if err := s.connect(ctx); err != nil {
		s.Close()
		return nil, err
	}

	hooks := events.Monitor(logger)
	if cfg.Audit.Enabled {
		auditHooks, err := s.openAudit(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		hooks = events.Chain(hooks, auditHooks)
	}

	s.eng = engine.New(
		engine.WithLogger(logger),
		engine.WithHooks(hooks),
		engine.WithCapitalizedSQL(cfg.CapSQL),
		engine.WithNativeFormatting(cfg.NativeFormatting),
	)
	return s, nil
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Driver != "" {
		cfg.Driver = opts.Driver
	}
	if opts.DSN != "" {
		cfg.DSN = opts.DSN
	}
	return cfg, nil
}

// newLogger builds a zap logger from the log configuration, writing to w.
// verbose forces debug level.
func newLogger(lc config.LogConfig, verbose bool, w io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if lc.Encoding == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level)), nil
}

// connect opens the execution client for the configured driver.
func (s *session) connect(ctx context.Context) error {
	s.logger.Debug("connecting", zap.String("driver", s.cfg.Driver))

	if s.cfg.Driver == driverPgx {
		c, err := pgclient.Connect(ctx, s.cfg.DSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		s.client = c
		s.closers = append(s.closers, func() error { c.Close(); return nil })
		return nil
	}

	st, err := store.Open(s.cfg.Driver, s.cfg.DSN)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	s.client = st
	s.closers = append(s.closers, st.Close)
	if s.cfg.Audit.Enabled && st.Driver() == store.DriverSQLite && s.cfg.AuditPath() == s.cfg.DSN {
		s.audit = st
	}
	return nil
}

// openAudit returns hooks writing to the query log, opening a separate
// SQLite store unless the execution store doubles as the log.
func (s *session) openAudit(ctx context.Context) (events.Hooks, error) {
	if s.audit == nil {
		path := s.cfg.AuditPath()
		if path == "" {
			return events.Hooks{}, NewExitError(ExitCommandError,
				fmt.Sprintf("audit log needs audit.path with driver %s", s.cfg.Driver))
		}
		st, err := store.OpenSQLite(path)
		if err != nil {
			return events.Hooks{}, WrapExitError(ExitCommandError, "failed to open audit log", err)
		}
		s.audit = st
		s.closers = append(s.closers, st.Close)
	}

	auditor, err := store.NewAuditor(ctx, s.audit, store.WithAuditLogger(s.logger))
	if err != nil {
		return events.Hooks{}, WrapExitError(ExitCommandError, "failed to open audit log", err)
	}
	return auditor.Hooks(), nil
}

// fileOptions returns the query file options from the configuration.
func (s *session) fileOptions() queryfile.Options {
	return queryfile.Options{Minify: s.cfg.QueryFiles.Minify}
}

// Close releases the connections in reverse order of opening.
func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	_ = s.logger.Sync()
	return first
}

// parseValues decodes a --values argument. YAML is a superset of JSON, so
// '[1, "a"]', '{"id": 1}' and a bare scalar are all accepted. Empty means
// no values.
func parseValues(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --values", err)
	}
	return v, nil
}
