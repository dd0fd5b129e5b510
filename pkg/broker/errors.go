package broker

import (
	"errors"
	"fmt"
)

// ErrInvalidUpstreamBody indicates the provider answered with something
// other than JSON.
var ErrInvalidUpstreamBody = errors.New("broker: upstream returned invalid JSON")

// UpstreamError is a non-success response from the provider.
type UpstreamError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("broker: upstream error: %s", e.Status)
}
