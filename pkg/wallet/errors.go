package wallet

import (
	"errors"
	"fmt"
)

// Sentinel errors for the wallet package.
var (
	// ErrNotConnected indicates an operation that needs a connected wallet.
	ErrNotConnected = errors.New("wallet: not connected")

	// ErrConnecting indicates Connect was called while a connect is in flight.
	ErrConnecting = errors.New("wallet: connection in progress")

	// ErrNoWallet indicates no signing key is configured.
	ErrNoWallet = errors.New("wallet: no signing key configured")

	// ErrInvalidAmount indicates an amount outside (0, 1000] ETH or unparsable.
	ErrInvalidAmount = errors.New("wallet: invalid amount, must be between 0 and 1000 ETH")

	// ErrInvalidRecipient indicates a recipient that is neither an address nor a resolvable ENS name.
	ErrInvalidRecipient = errors.New("wallet: invalid recipient")

	// ErrInsufficientBalance indicates the balance cannot cover value (and gas).
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")

	// ErrUserRejected indicates the approver declined the transaction.
	ErrUserRejected = errors.New("wallet: transaction rejected by user")

	// ErrTransactionReverted indicates the transaction was mined but failed.
	ErrTransactionReverted = errors.New("wallet: transaction reverted")
)

// TxError wraps a failure at a specific step of a send.
type TxError struct {
	// Step names the send step that failed (estimate gas, sign, broadcast, ...).
	Step string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TxError) Error() string {
	return fmt.Sprintf("wallet: %s: %v", e.Step, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TxError) Unwrap() error {
	return e.Cause
}

func txError(step string, cause error) error {
	return &TxError{Step: step, Cause: cause}
}

// IsUserError reports whether err was caused by the caller's input rather than
// the chain or the network.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrUserRejected)
}
