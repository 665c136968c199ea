package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// CallOptions holds the flags shared by the single-call commands.
type CallOptions struct {
	*RootOptions
	Values string
	Mask   string
	Tag    string
	ID     string
	Native bool
	Audit  bool
	Raw    bool
}

func (o *CallOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Values, "values", "p", "", "values as JSON or YAML: a list, an object or a scalar")
	cmd.Flags().StringVarP(&o.Mask, "mask", "m", "", "expected rows: one, many, none, one-or-none, many-or-none, any")
	cmd.Flags().StringVar(&o.Tag, "tag", "", "diagnostic tag passed to hooks and the audit log")
	cmd.Flags().StringVar(&o.ID, "id", "", "correlation id (default: generated UUIDv7)")
	cmd.Flags().BoolVar(&o.Audit, "audit", false, "record the call in the audit log")
	cmd.Flags().BoolVar(&o.Raw, "raw", false, "print the raw result without mask checking")
}

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	CallOptions
	Prepared string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{CallOptions: CallOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute a SQL query",
		Long: `Execute a SQL query and shape the result by the expected row count.

Values are formatted into $1..$N or ${name} placeholders unless --native
or --prepared is given, in which case they are sent to the driver.

Examples:
  qexec query --db app.db 'SELECT * FROM users WHERE id = $1' -p '[1]' --mask one
  qexec query --db app.db 'SELECT * FROM users WHERE name = ${name}' -p '{name: ann}'
  qexec query --driver pgx --db postgres://localhost/app --prepared find-user \
    'SELECT * FROM users WHERE id = $1' -p '[1]' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var d query.Descriptor = query.Raw(args[0])
			if opts.Prepared != "" {
				d = query.Prepared(opts.Prepared, args[0])
			}
			return runCall(cmd, &opts.CallOptions, func(*session) query.Descriptor { return d })
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Native, "native", false, "send values to the driver instead of formatting them")
	cmd.Flags().StringVar(&opts.Prepared, "prepared", "", "execute as a named prepared statement")

	return cmd
}

// commandContext returns the command's context, cancelled on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runCall executes one descriptor built against the opened session and
// prints the outcome.
func runCall(cmd *cobra.Command, opts *CallOptions, build func(*session) query.Descriptor) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	values, err := parseValues(opts.Values)
	if err != nil {
		return err
	}
	var masks []result.Mask
	if opts.Mask != "" {
		m, err := result.ParseMask(opts.Mask)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --mask", err)
		}
		masks = append(masks, m)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, opts.RootOptions, sessionOptions{native: opts.Native, audit: opts.Audit}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	var tag any
	if opts.Tag != "" {
		tag = opts.Tag
	}
	sc := s.eng.NewScope(s.client, tag)
	if opts.ID != "" {
		sc.ID = opts.ID
	}

	d := build(s)
	var out result.Outcome
	if opts.Raw {
		var res *result.Result
		res, err = s.eng.Result(ctx, sc, d, values)
		if err == nil {
			out = result.Outcome{Kind: result.KindRows, Rows: res.Rows, Duration: res.Duration, Result: res}
		}
	} else {
		out, err = s.eng.Execute(ctx, sc, d, values, masks...)
	}
	if err != nil {
		s.logger.Debug("call failed", zap.String("id", sc.ID), zap.Error(err))
		if outErr := formatter.QueryError(sc.ID, err); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "query failed", err)
	}
	return formatter.Outcome(sc.ID, out)
}
