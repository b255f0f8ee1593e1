package saga_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/dejobratic/orderflow/internal/orders/app/saga"
)

type recordingStep struct {
	name          string
	executeErr    error
	compensateErr error
	journal       *[]string
}

func (s *recordingStep) Name() string { return s.name }

func (s *recordingStep) Execute(_ context.Context) error {
	*s.journal = append(*s.journal, "execute:"+s.name)
	return s.executeErr
}

func (s *recordingStep) Compensate(_ context.Context) error {
	*s.journal = append(*s.journal, "compensate:"+s.name)
	return s.compensateErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSagaRun(t *testing.T) {
	t.Run("runs every step in order", func(t *testing.T) {
		var journal []string
		s := saga.New(discardLogger(),
			&recordingStep{name: "a", journal: &journal},
			&recordingStep{name: "b", journal: &journal},
		)

		if err := s.Run(context.Background()); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		want := []string{"execute:a", "execute:b"}
		if !reflect.DeepEqual(journal, want) {
			t.Errorf("journal = %v, want %v", journal, want)
		}
	})

	t.Run("compensates completed steps in reverse order", func(t *testing.T) {
		var journal []string
		cause := errors.New("out of stock")
		s := saga.New(discardLogger(),
			&recordingStep{name: "a", journal: &journal},
			&recordingStep{name: "b", journal: &journal},
			&recordingStep{name: "c", journal: &journal, executeErr: cause},
			&recordingStep{name: "d", journal: &journal},
		)

		err := s.Run(context.Background())

		if !errors.Is(err, cause) {
			t.Fatalf("expected error to wrap cause, got: %v", err)
		}
		sagaErr, ok := saga.AsError(err)
		if !ok {
			t.Fatalf("expected *saga.Error, got %T", err)
		}
		if sagaErr.Step != "c" {
			t.Errorf("expected failed step c, got %s", sagaErr.Step)
		}
		if !sagaErr.Compensated() {
			t.Error("expected all steps to be compensated")
		}

		want := []string{"execute:a", "execute:b", "execute:c", "compensate:b", "compensate:a"}
		if !reflect.DeepEqual(journal, want) {
			t.Errorf("journal = %v, want %v", journal, want)
		}
	})

	t.Run("keeps compensating after a compensation fails", func(t *testing.T) {
		var journal []string
		s := saga.New(discardLogger(),
			&recordingStep{name: "a", journal: &journal},
			&recordingStep{name: "b", journal: &journal, compensateErr: errors.New("catalog down")},
			&recordingStep{name: "c", journal: &journal, executeErr: errors.New("boom")},
		)

		err := s.Run(context.Background())

		sagaErr, ok := saga.AsError(err)
		if !ok {
			t.Fatalf("expected *saga.Error, got %T", err)
		}
		if sagaErr.Compensated() {
			t.Error("expected compensation failure to be reported")
		}
		if len(sagaErr.CompensationFailures) != 1 || sagaErr.CompensationFailures[0].Step != "b" {
			t.Errorf("unexpected compensation failures: %+v", sagaErr.CompensationFailures)
		}

		want := []string{"execute:a", "execute:b", "execute:c", "compensate:b", "compensate:a"}
		if !reflect.DeepEqual(journal, want) {
			t.Errorf("journal = %v, want %v", journal, want)
		}
	})

	t.Run("stops before the next step when the context is canceled", func(t *testing.T) {
		var journal []string
		ctx, cancel := context.WithCancel(context.Background())
		first := &recordingStep{name: "a", journal: &journal}
		s := saga.New(discardLogger(), first, &recordingStep{name: "b", journal: &journal})

		cancel()
		err := s.Run(ctx)

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got: %v", err)
		}
		if len(journal) != 0 {
			t.Errorf("expected no steps to run, got %v", journal)
		}
	})
}
