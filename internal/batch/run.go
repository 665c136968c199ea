package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/qexec/internal/engine"
	"github.com/roach88/qexec/internal/query"
	"github.com/roach88/qexec/internal/queryfile"
)

// Runner executes batches through an engine against one client.
type Runner struct {
	eng    *engine.Engine
	client engine.Client
	logger *zap.Logger
	files  queryfile.Options
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger for batch progress. Default is a no-op logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFileOptions sets the options for query files named by calls.
func WithFileOptions(opts queryfile.Options) RunnerOption {
	return func(r *Runner) {
		r.files = opts
	}
}

// NewRunner creates a Runner executing calls with eng against client.
func NewRunner(eng *engine.Engine, client engine.Client, opts ...RunnerOption) *Runner {
	r := &Runner{eng: eng, client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes b and reports every call.
//
// A failed setup statement fails the report and skips all calls. The
// returned error is reserved for a cancelled context; expectation failures
// are carried in the report.
func (r *Runner) Run(ctx context.Context, b *Batch) (*Report, error) {
	report := NewReport(b.Name)
	r.logger.Info("batch started",
		zap.String("batch", b.Name),
		zap.Int("calls", len(b.Calls)),
		zap.Int("setup", len(b.Setup)),
	)

	if err := r.setup(ctx, b); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("batch %s: %w", b.Name, err)
		}
		report.AddError(err.Error())
		return report, nil
	}

	calls := make([]CallReport, len(b.Calls))
	limit := b.Parallel
	if limit == 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, c := range b.Calls {
		if ctx.Err() != nil {
			break
		}
		i, c := i, c
		g.Go(func() error {
			calls[i] = r.runCall(ctx, b.dir, c)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch %s: %w", b.Name, err)
	}

	report.Calls = calls
	for _, c := range calls {
		if !c.Pass {
			report.Pass = false
		}
	}
	r.logger.Info("batch finished",
		zap.String("batch", b.Name),
		zap.Bool("pass", report.Pass),
		zap.Int("failed", len(report.Failed())),
	)
	return report, nil
}

// setup runs the setup statements in order, stopping at the first failure.
func (r *Runner) setup(ctx context.Context, b *Batch) error {
	if len(b.Setup) == 0 {
		return nil
	}
	sc := r.eng.NewScope(r.client, b.Name+"/setup")
	for i, stmt := range b.Setup {
		if _, err := r.eng.Result(ctx, sc, query.Raw(stmt), nil); err != nil {
			return fmt.Errorf("setup statement %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *Runner) runCall(ctx context.Context, dir string, c Call) CallReport {
	sc := r.eng.NewScope(r.client, c.Name)
	out, err := r.eng.Execute(ctx, sc, c.descriptor(dir, r.files), c.Values, c.masks()...)

	rep := CallReport{Name: c.Name, ID: sc.ID}
	rep.record(out, err)
	for _, f := range check(c.Name, c.Expect, out, err) {
		rep.Failures = append(rep.Failures, f.Error())
	}
	rep.Pass = len(rep.Failures) == 0

	if rep.Pass {
		r.logger.Debug("call passed", zap.String("call", c.Name), zap.String("id", sc.ID))
	} else {
		r.logger.Warn("call failed",
			zap.String("call", c.Name),
			zap.String("id", sc.ID),
			zap.Strings("failures", rep.Failures),
		)
	}
	return rep
}
