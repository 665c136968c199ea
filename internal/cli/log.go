package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/qexec/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	CallID string
	Limit  int
	Path   string
}

// LogEntry is one audit log event in command output.
type LogEntry struct {
	Seq        int64   `json:"seq"`
	CallID     string  `json:"call_id"`
	Event      string  `json:"event"`
	Query      string  `json:"query"`
	Params     []any   `json:"params,omitempty"`
	Tag        string  `json:"tag,omitempty"`
	Rows       int     `json:"rows,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the audit log",
		Long: `Show query, receive and error events recorded in the audit log.

Without --call the most recent events are shown, oldest first.

Examples:
  qexec log --db app.db
  qexec log --db app.db --call 0190f7c2-8f3a-7c4e-9d1b-3a5c7e9f1b2d
  qexec log --audit-db audit.db --limit 100 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showLog(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.CallID, "call", "", "show only events of this correlation id")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of recent events to show")
	cmd.Flags().StringVar(&opts.Path, "audit-db", "", "audit log path (default: from config)")

	return cmd
}

func showLog(cmd *cobra.Command, opts *LogOptions) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, "--limit must be positive")
	}

	path := opts.Path
	if path == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		path = cfg.AuditPath()
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no audit log: set --audit-db or audit.path")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	st, err := store.OpenSQLite(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open audit log", err)
	}
	defer st.Close()

	var entries []store.AuditEntry
	if opts.CallID != "" {
		entries, err = st.ReadAudit(ctx, opts.CallID)
	} else {
		entries, err = st.ReadRecentAudit(ctx, opts.Limit)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit log", err)
	}
	formatter.VerboseLog("read %d events from %s", len(entries), path)

	out := make([]LogEntry, len(entries))
	for i, e := range entries {
		out[i] = LogEntry{
			Seq:        e.Seq,
			CallID:     e.CallID,
			Event:      e.Event,
			Query:      e.Query,
			Params:     e.Params,
			Tag:        e.Tag,
			Rows:       e.Rows,
			DurationMS: float64(e.Duration.Microseconds()) / 1000,
			Error:      e.Error,
		}
	}

	if opts.Format == "json" {
		return formatter.Success(out)
	}
	if len(out) == 0 {
		fmt.Fprintln(formatter.Writer, "No events.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tCALL\tEVENT\tQUERY\tDETAIL")
	for _, e := range out {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.CallID, e.Event, oneLine(e.Query), detail(e))
	}
	return tw.Flush()
}

func detail(e LogEntry) string {
	switch e.Event {
	case store.EventReceive:
		return fmt.Sprintf("%d rows in %.3fms", e.Rows, e.DurationMS)
	case store.EventError:
		return oneLine(e.Error)
	}
	if e.Tag != "" {
		return "tag=" + e.Tag
	}
	return ""
}

// oneLine collapses whitespace so multi-line SQL fits a table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
