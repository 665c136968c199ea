package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/result"
)

// FuncOptions holds flags for the func command.
type FuncOptions struct {
	CallOptions
	Proc bool
}

// NewFuncCommand creates the func command.
func NewFuncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FuncOptions{CallOptions: CallOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "func <name> [args...]",
		Short: "Call a database function",
		Long: `Call a database function as "select * from name(args...)".

Each argument is parsed as a YAML scalar, so 42 is a number, true a
boolean and 'text' or text a string. With --proc the call expects at
most one row, like a stored procedure.

Examples:
  qexec func --driver pgx --db postgres://localhost/app find_users 'ann%' 10
  qexec func --driver pgx --db postgres://localhost/app audit_user 7 --proc`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fnArgs := parseArgs(args[1:])
			if opts.Proc {
				if opts.Mask != "" {
					return NewExitError(ExitCommandError, "--proc and --mask are exclusive")
				}
				opts.Mask = result.OneOrNone.String()
			}
			return runCall(cmd, &opts.CallOptions, func(*session) query.Descriptor {
				return query.Function(args[0], fnArgs...)
			})
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&opts.Proc, "proc", false, "expect at most one row")

	return cmd
}

// parseArgs decodes each function argument as a YAML scalar. Arguments that
// are not valid YAML, or decode to a collection, are kept as text.
func parseArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		var v any
		if err := yaml.Unmarshal([]byte(a), &v); err != nil {
			v = a
		}
		switch v.(type) {
		case map[string]any, []any:
			v = a
		case nil:
			if a != "null" && a != "~" {
				v = a
			}
		}
		out[i] = v
	}
	return out
}
