// Package followup runs best-effort work that happens after an order is confirmed.
// A task failure is logged and counted but never reaches the caller that scheduled it.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Task is a named unit of best-effort work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// FailureRecorder counts failed tasks.
type FailureRecorder interface {
	RecordFollowUpFailure(ctx context.Context, task string)
}

const defaultTaskTimeout = 10 * time.Second

// Dispatcher runs every task on its own goroutine.
type Dispatcher struct {
	logger   *slog.Logger
	recorder FailureRecorder
	timeout  time.Duration
	wg       sync.WaitGroup
}

type Option func(*Dispatcher)

// WithTimeout bounds each task's run time.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithFailureRecorder reports failed tasks to recorder.
func WithFailureRecorder(recorder FailureRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:  logger,
		timeout: defaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts the tasks and returns immediately. The tasks keep the values of ctx
// (trace, logger attributes) but not its cancellation, so they outlive the request.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks ...Task) {
	base := context.WithoutCancel(ctx)
	for _, task := range tasks {
		d.wg.Add(1)
		go func(task Task) {
			defer d.wg.Done()
			d.run(base, task)
		}(task)
	}
}

func (d *Dispatcher) run(ctx context.Context, task Task) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "FollowUp."+task.Name)
	defer span.End()

	err := safeRun(ctx, task)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		d.logger.WarnContext(ctx, "follow-up task failed",
			"task", task.Name,
			"error", err,
		)
		if d.recorder != nil {
			d.recorder.RecordFollowUpFailure(ctx, task.Name)
		}
		return
	}

	telemetry.AddSpanAttributes(span, attribute.String("followup.task", task.Name))
	telemetry.SetSpanSuccess(span)
	d.logger.DebugContext(ctx, "follow-up task completed", "task", task.Name)
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return task.Run(ctx)
}

// Wait blocks until all dispatched tasks finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
