package domain

import "errors"

// Error taxonomy for the board engines. Callers classify with errors.Is;
// wrapping sites add context with fmt.Errorf("...: %w", err).
var (
	// ErrConnectivity channel subscribe failed or the store is unreachable
	ErrConnectivity = errors.New("connectivity failure")
	// ErrValidation empty message content or malformed stroke
	ErrValidation = errors.New("validation failed")
	// ErrAuth action requires a signed-in identity
	ErrAuth = errors.New("not authenticated")
	// ErrNotConnected action attempted before channel subscription completed
	ErrNotConnected = errors.New("channel not connected")
	// ErrPersistence write rejected by the store
	ErrPersistence = errors.New("persistence failure")
)
