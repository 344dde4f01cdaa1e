package escrow

import "errors"

var (
	// ErrNotFound reports an unknown listing or transaction id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState reports a precondition failure on the current status:
	// out-of-order webhooks, double confirmation, resolving outside
	// INSPECTING, or initiating against a non-ACTIVE listing.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden reports a caller who is not a party to the transaction.
	ErrForbidden = errors.New("forbidden")
	// ErrGateway reports a timeout or failure talking to the payment or
	// courier provider. The transition it interrupted is never half-applied.
	ErrGateway = errors.New("gateway error")
)
