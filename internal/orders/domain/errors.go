package domain

import "errors"

// Error kinds produced while placing or reading orders. Callers match them with errors.Is;
// the concrete error usually wraps one of these together with its cause.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthorized    = errors.New("permission denied")
	ErrUnavailable     = errors.New("product unavailable")
	ErrRemote          = errors.New("remote service error")
	ErrPersistence     = errors.New("persistence error")
	ErrNotFound        = errors.New("order not found")
	ErrInventoryCommit = errors.New("inventory commit failed")
	// ErrOutcomeUnknown marks a remote call that may have been applied even though no
	// response arrived.
	ErrOutcomeUnknown = errors.New("remote outcome unknown")
)
