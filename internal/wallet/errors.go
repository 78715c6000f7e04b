package wallet

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrWalletNotFound    = fmt.Errorf("wallet %w", ErrNotFound)
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEscrowConflict    = errors.New("escrow already held for milestone")

	// ErrTransferFailed is the only error callers see for internal faults.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrStorageConflict marks a retryable serialization or deadlock failure.
	// It never leaves the package.
	ErrStorageConflict = errors.New("storage conflict")
)

// isDomainError reports errors that pass through to callers unchanged.
func isDomainError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrEscrowConflict):
		return true
	default:
		return false
	}
}
