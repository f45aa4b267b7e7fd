// Package gateway abstracts the external payment processor. Both
// implementations honor the same contract: AuthorizeHold reserves funds
// without moving them, Capture converts a hold into a debit, Transfer pays
// out to a payee, CancelHold releases a hold without ever debiting.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNoPayableAccount is returned by Transfer when the payee reference is empty.
var ErrNoPayableAccount = errors.New("payee has no payable account")

// Error wraps a processor failure, naming the operation that failed.
// Internal detail stays in Err; callers log it and return a generic message.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Hold is the result of a successful authorization.
type Hold struct {
	Ref       string
	RawStatus string
	Simulated bool
}

// Gateway is the payment processor contract.
//
// Capture must be idempotent: capturing an already-captured hold returns
// the prior capture reference. CancelHold must be safe on an already-
// cancelled hold (no-op success).
type Gateway interface {
	AuthorizeHold(ctx context.Context, amount decimal.Decimal, currency, payerRef string, meta map[string]string) (Hold, error)
	Capture(ctx context.Context, holdRef string) (captureRef string, err error)
	Transfer(ctx context.Context, amount decimal.Decimal, currency, payeeRef string, meta map[string]string) (transferRef string, err error)
	CancelHold(ctx context.Context, holdRef, reason string) (cancelRef string, err error)
}
