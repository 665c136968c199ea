package engine

import (
	"context"
	"sync"

	"github.com/roach88/qexec/internal/result"
)

// Future is the deferred outcome of one call. It settles exactly once,
// either resolved with an Outcome or rejected with an error.
type Future struct {
	once sync.Once
	done chan struct{}
	out  result.Outcome
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// settle records the outcome. Only the first settlement takes effect;
// it reports whether this one did.
func (f *Future) settle(out result.Outcome, err error) bool {
	settled := false
	f.once.Do(func() {
		f.out, f.err = out, err
		settled = true
		close(f.done)
	})
	return settled
}

func (f *Future) resolve(out result.Outcome) bool { return f.settle(out, nil) }

func (f *Future) reject(err error) bool { return f.settle(result.Outcome{}, err) }

// Done is closed once the call has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call settles and returns its outcome.
func (f *Future) Wait() (result.Outcome, error) {
	<-f.done
	return f.out, f.err
}

// WaitContext is Wait bounded by ctx. When ctx ends first it returns
// ctx.Err(); the call itself is not cancelled and still settles.
func (f *Future) WaitContext(ctx context.Context) (result.Outcome, error) {
	select {
	case <-f.done:
		return f.out, f.err
	case <-ctx.Done():
		return result.Outcome{}, ctx.Err()
	}
}
