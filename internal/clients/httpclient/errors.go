package httpclient

import (
	"errors"
	"fmt"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// RemoteError describes a failed call to a collaborator. It matches domain.ErrRemote, and
// also domain.ErrOutcomeUnknown when the request was sent but its response was lost.
type RemoteError struct {
	Service    string
	Operation  string
	StatusCode int
	Unanswered bool
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Operation, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	return target == domain.ErrRemote || (e.Unanswered && target == domain.ErrOutcomeUnknown)
}

// StatusCode reports the HTTP status carried by err, or 0 when the call never got a response.
func StatusCode(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode
	}
	return 0
}
