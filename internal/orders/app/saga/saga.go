// Package saga runs a sequence of remote side effects and undoes the completed ones when a
// later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Step is a single unit of work with an action that reverses it.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Error reports the step that failed and any compensation that could not be applied.
type Error struct {
	Step                 string
	Err                  error
	CompensationFailures []CompensationFailure
}

// CompensationFailure records a step whose effects are still in place after a rollback.
type CompensationFailure struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("step %s: %v", e.Step, e.Err)
	if n := len(e.CompensationFailures); n > 0 {
		msg += fmt.Sprintf(" (%d compensation(s) failed)", n)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Compensated reports whether every completed step was reversed.
func (e *Error) Compensated() bool {
	return len(e.CompensationFailures) == 0
}

// Saga executes its steps in order.
type Saga struct {
	steps  []Step
	logger *slog.Logger
}

func New(logger *slog.Logger, steps ...Step) *Saga {
	return &Saga{steps: steps, logger: logger}
}

// Run executes the steps sequentially. When a step fails, the steps that already succeeded
// are compensated in reverse order and a *Error is returned.
func (s *Saga) Run(ctx context.Context) error {
	completed := make([]Step, 0, len(s.steps))

	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return s.abort(ctx, step, err, completed)
		}

		s.logger.DebugContext(ctx, "executing saga step", "step", step.Name())
		if err := step.Execute(ctx); err != nil {
			return s.abort(ctx, step, err, completed)
		}
		completed = append(completed, step)
	}

	return nil
}

func (s *Saga) abort(ctx context.Context, failed Step, cause error, completed []Step) error {
	s.logger.WarnContext(ctx, "saga step failed, compensating",
		"step", failed.Name(),
		"completed_steps", len(completed),
		"error", cause,
	)

	sagaErr := &Error{Step: failed.Name(), Err: cause}

	// Compensation must run even when the request context is already done.
	compCtx := context.WithoutCancel(ctx)
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if err := step.Compensate(compCtx); err != nil {
			s.logger.ErrorContext(ctx, "saga compensation failed, manual reconciliation required",
				"step", step.Name(),
				"error", err,
			)
			sagaErr.CompensationFailures = append(sagaErr.CompensationFailures, CompensationFailure{
				Step: step.Name(),
				Err:  err,
			})
		}
	}

	return sagaErr
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var sagaErr *Error
	ok := errors.As(err, &sagaErr)
	return sagaErr, ok
}
