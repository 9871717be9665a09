package gateway

import "errors"

// Typed errors for gateway adapters. Callers map these without depending on
// SDK-specific error types.
var (
	// ErrGateway indicates an unexpected failure talking to a payment provider.
	ErrGateway = errors.New("gateway error")
	// ErrNotFound indicates the provider has no record for the identifier.
	ErrNotFound = errors.New("gateway record not found")
	// ErrInconsistent indicates provider state that cannot be reconciled,
	// e.g. a verified payment with no resolvable subscription.
	ErrInconsistent = errors.New("gateway state inconsistent")
	// ErrUnsupportedMethod indicates no adapter is registered for a payment method.
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)
