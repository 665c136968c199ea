package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/qexec/internal/batch"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Parallel int
	Audit    bool
}

// BatchOutput is the JSON payload of a batch run.
type BatchOutput struct {
	Batch  string             `json:"batch"`
	Pass   bool               `json:"pass"`
	Passed int                `json:"passed"`
	Failed int                `json:"failed"`
	Errors []string           `json:"errors,omitempty"`
	Calls  []batch.CallReport `json:"calls"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <batch.yaml>...",
		Short: "Run batch files of queries with expectations",
		Long: `Run YAML batch files. Each file lists setup statements and calls with
an optional mask and expectation. All files run; the command fails if any
call misses its expectation.

Examples:
  qexec batch --db test.db ./batches/users.yaml
  qexec batch --db test.db ./batches/*.yaml --parallel 8 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatches(cmd, opts, args)
		},
	}

	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "override the calls in flight per batch")
	cmd.Flags().BoolVar(&opts.Audit, "audit", false, "record calls in the audit log")

	return cmd
}

func runBatches(cmd *cobra.Command, opts *BatchOptions, paths []string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Parallel < 0 {
		return NewExitError(ExitCommandError, "--parallel must not be negative")
	}

	batches := make([]*batch.Batch, len(paths))
	for i, p := range paths {
		b, err := batch.Load(p)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", p), err)
		}
		if opts.Parallel > 0 {
			b.Parallel = opts.Parallel
		}
		batches[i] = b
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, opts.RootOptions, sessionOptions{audit: opts.Audit}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()

	runner := batch.NewRunner(s.eng, s.client,
		batch.WithLogger(s.logger),
		batch.WithFileOptions(s.fileOptions()),
	)

	failed := 0
	var outputs []BatchOutput
	for _, b := range batches {
		formatter.VerboseLog("running batch %s (%d calls)", b.Name, len(b.Calls))
		report, err := runner.Run(ctx, b)
		if err != nil {
			return WrapExitError(ExitCommandError, "batch interrupted", err)
		}
		if !report.Pass {
			failed++
		}
		out := BatchOutput{
			Batch:  report.Name,
			Pass:   report.Pass,
			Failed: len(report.Failed()),
			Errors: report.Errors,
			Calls:  report.Calls,
		}
		out.Passed = len(report.Calls) - out.Failed
		outputs = append(outputs, out)

		if opts.Format != "json" {
			printBatchText(formatter, out)
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(outputs); err != nil {
			return err
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d batches failed", failed, len(batches)))
	}
	return nil
}

func printBatchText(f *OutputFormatter, out BatchOutput) {
	status := "PASS"
	if !out.Pass {
		status = "FAIL"
	}
	fmt.Fprintf(f.Writer, "%s %s (%d passed, %d failed)\n", status, out.Batch, out.Passed, out.Failed)
	for _, e := range out.Errors {
		fmt.Fprintf(f.Writer, "  error: %s\n", e)
	}
	for _, c := range out.Calls {
		if c.Pass {
			f.VerboseLog("  ok   %s", c.Name)
			continue
		}
		fmt.Fprintf(f.Writer, "  FAIL %s\n", c.Name)
		for _, msg := range c.Failures {
			fmt.Fprintf(f.Writer, "    %s\n", msg)
		}
	}
}
