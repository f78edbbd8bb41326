package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both missing records and records owned by someone
	// else; callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrInvalidWallet rejects a transaction posted against a wallet the
	// caller does not own (or that does not exist).
	ErrInvalidWallet = errors.New("invalid wallet")

	// ErrTransient marks store unavailability or timeouts. Safe to retry.
	ErrTransient = errors.New("ledger store unavailable")

	// ErrConflict is returned by a compare-and-set update that lost a race.
	ErrConflict = errors.New("concurrent modification")
)

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PartialFailureError means a multi-step mutation applied its first step but
// could neither finish nor undo it. The ledger needs reconciliation.
type PartialFailureError struct {
	Op        string
	Completed string
	Failed    string
	WalletID  string
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s partially applied: %s done, %s failed: %v", e.Op, e.Completed, e.Failed, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// IsPartialFailure reports whether err carries a PartialFailureError.
func IsPartialFailure(err error) bool {
	var pf *PartialFailureError
	return errors.As(err, &pf)
}
