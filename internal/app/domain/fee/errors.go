package fee

import (
	"errors"
	"fmt"
)

// Domain errors returned by the engine. All of them are typed so callers can
// branch with errors.Is; nothing is silently defaulted except the documented
// unknown-kind -> normal-class classification rule.
var (
	// ErrConfigInvalid indicates a schedule or policy that fails eager
	// validation. It is fatal at startup and never returned at request time.
	ErrConfigInvalid = errors.New("gas fee configuration invalid")

	// ErrInsufficientFunds indicates the payer cannot cover the fee even
	// after the auto-swap fallback. No state is mutated.
	ErrInsufficientFunds = errors.New("insufficient funds for gas fee")

	// ErrSlippageExceeded indicates the swap quote became too costly at
	// execution time. No state is mutated.
	ErrSlippageExceeded = errors.New("swap slippage exceeded tolerance")

	// ErrInternalInvariant indicates a broken engine invariant, such as a
	// distribution that does not sum to its total. Fatal for the request.
	ErrInternalInvariant = errors.New("internal invariant violation")
)

// StoreError wraps a ledger or persistence failure inside the atomic unit.
// It always triggers a rollback.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a StoreError for operation op.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Resource, e.ID) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
