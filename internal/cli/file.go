package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/queryfile"
)

// FileOptions holds flags for the file command.
type FileOptions struct {
	CallOptions
	Minify bool
	Watch  bool
}

// NewFileCommand creates the file command.
func NewFileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FileOptions{CallOptions: CallOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "file <path.sql>",
		Short: "Execute a SQL file",
		Long: `Execute the query in a SQL file.

The file is read on first use. A file that cannot be read fails the call
with the file path as the query text. With --watch the query runs again
each time the file changes, until interrupted.

Examples:
  qexec file --db app.db queries/active_users.sql --mask many
  qexec file --db app.db queries/user.sql -p '{id: 7}' --minify
  qexec file --db app.db queries/report.sql --watch`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd, opts, args[0])
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Minify, "minify", false, "strip comments and collapse whitespace")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "re-run the query whenever the file changes")

	return cmd
}

func runFile(cmd *cobra.Command, opts *FileOptions, path string) error {
	var qf *queryfile.QueryFile
	build := func(s *session) query.Descriptor {
		if qf == nil {
			fo := s.fileOptions()
			fo.Minify = fo.Minify || opts.Minify
			qf = queryfile.New(path, fo)
		}
		return query.FromFile(qf)
	}

	if !opts.Watch {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		if !cfg.QueryFiles.Watch {
			return runCall(cmd, &opts.CallOptions, build)
		}
	}
	return watchFile(cmd, opts, path, build)
}

// watchFile runs the file query once, then again on every change until the
// command context ends. Query failures are printed and do not stop the
// loop.
func watchFile(cmd *cobra.Command, opts *FileOptions, path string, build func(*session) query.Descriptor) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}

	w, err := queryfile.NewWatcher(logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to watch query file", err)
	}
	defer w.Stop()

	// The watcher must track the same QueryFile the call uses.
	tracked := false
	watched := func(s *session) query.Descriptor {
		d := build(s)
		if !tracked {
			if f, ok := d.(query.File); ok {
				if qf, ok := f.Handle.(*queryfile.QueryFile); ok {
					if err := w.Add(qf); err != nil {
						logger.Warn("failed to watch query file", zap.String("file", path), zap.Error(err))
					}
				}
			}
			tracked = true
		}
		return d
	}

	w.Start(ctx)
	for {
		if err := runCall(cmd, &opts.CallOptions, watched); err != nil && GetExitCode(err) == ExitCommandError {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case changed := <-w.Changed():
			logger.Info("query file changed, running again", zap.String("file", changed))
		}
	}
}
