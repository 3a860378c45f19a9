package driver

import (
	"context"
	"sync"
	"time"

	"github.com/geoflow/geoflow/core/domain"
)

// StepRunner performs the work behind a single workflow step.
// Implementations must return promptly once ctx is cancelled.
type StepRunner interface {
	Run(ctx context.Context, step domain.WorkflowStep) (*domain.StepResult, error)
}

// DelayRunner stands in for real analysis: it waits Delay and returns the
// placeholder result regardless of the step's operation or parameters.
type DelayRunner struct {
	Delay time.Duration
}

func (r DelayRunner) Run(ctx context.Context, _ domain.WorkflowStep) (*domain.StepResult, error) {
	timer := time.NewTimer(r.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return domain.PlaceholderResult(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunnerFunc adapts a function to StepRunner
type RunnerFunc func(ctx context.Context, step domain.WorkflowStep) (*domain.StepResult, error)

func (f RunnerFunc) Run(ctx context.Context, step domain.WorkflowStep) (*domain.StepResult, error) {
	return f(ctx, step)
}

// Future is the eventual outcome of an asynchronous step run
type Future struct {
	done   chan struct{}
	once   sync.Once
	result *domain.StepResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result *domain.StepResult, err error) {
	f.once.Do(func() {
		f.result, f.err = result, err
		close(f.done)
	})
}

// Done is closed once the outcome is available
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the future resolves and returns its outcome
func (f *Future) Result() (*domain.StepResult, error) {
	<-f.done
	return f.result, f.err
}

// Go runs step on runner in its own goroutine and returns a future for the outcome
func Go(ctx context.Context, runner StepRunner, step domain.WorkflowStep) *Future {
	f := newFuture()
	go func() {
		result, err := runner.Run(ctx, step)
		f.resolve(result, err)
	}()
	return f
}
