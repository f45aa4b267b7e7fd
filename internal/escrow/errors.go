package escrow

import "errors"

// Sentinel errors for the escrow state machine. Handlers map these onto
// HTTP status codes; services wrap nothing else around them.
var (
	ErrCaseNotFound        = errors.New("case not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrFinderNotFound      = errors.New("finder not found")
	ErrClaimNotFound       = errors.New("claim not found")

	// ErrDuplicateEscrow: a pending or escrow transaction already exists
	// for the case.
	ErrDuplicateEscrow = errors.New("an active escrow already exists for this case")

	// ErrInvalidTransactionState: the operation was attempted from a state
	// the transition table does not allow (also returned to the loser of a
	// concurrent compare-and-swap).
	ErrInvalidTransactionState = errors.New("transaction is not in a valid state for this operation")

	ErrReasonTooShort    = errors.New("dispute reason must be at least 10 characters")
	ErrUnauthorized      = errors.New("caller is not a party to this transaction")
	ErrInvalidResolution = errors.New("invalid dispute resolution")
)
