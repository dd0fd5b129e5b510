package realtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for the realtime package.
var (
	// ErrAlreadyActive indicates Start was called while connecting or open.
	ErrAlreadyActive = errors.New("realtime: session already active")

	// ErrSessionStopped indicates Stop was called while Start was negotiating.
	ErrSessionStopped = errors.New("realtime: session stopped during negotiation")

	// ErrInvalidEvent indicates a frame that is not a JSON object with a type.
	ErrInvalidEvent = errors.New("realtime: invalid event")

	// ErrChannelClosed indicates a send on a closed channel.
	ErrChannelClosed = errors.New("realtime: channel closed")

	// ErrSignalling indicates the offer/answer exchange failed.
	ErrSignalling = errors.New("realtime: signalling failed")

	// ErrMissingToken indicates the broker returned no ephemeral credential.
	ErrMissingToken = errors.New("realtime: broker returned no credential")
)

// ConnectionError represents a failure while establishing the connection.
type ConnectionError struct {
	// Stage names the negotiation step that failed.
	Stage string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("realtime: connection error: %s: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("realtime: connection error: %s", e.Stage)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(stage string, cause error) *ConnectionError {
	return &ConnectionError{Stage: stage, Cause: cause}
}

// SignalError is a non-success response from the broker or provider.
type SignalError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *SignalError) Error() string {
	return fmt.Sprintf("realtime: signalling failed (HTTP %d): %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrSignalling.
func (e *SignalError) Unwrap() error {
	return ErrSignalling
}

// IsConnectionError returns true if err came from connection setup.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
