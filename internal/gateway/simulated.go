package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// hold states inside the simulated bookkeeping.
const (
	simAuthorized = "authorized"
	simCaptured   = "captured"
	simCancelled  = "cancelled"
)

type simHold struct {
	amount     decimal.Decimal
	currency   string
	payerRef   string
	status     string
	captureRef string
	cancelRef  string
}

// Simulated is the local gateway used when no processor key is configured.
// All bookkeeping is in memory; no funds move anywhere.
type Simulated struct {
	mu    sync.Mutex
	holds map[string]*simHold
}

var _ Gateway = (*Simulated)(nil)

func NewSimulated() *Simulated {
	return &Simulated{holds: make(map[string]*simHold)}
}

func (g *Simulated) AuthorizeHold(_ context.Context, amount decimal.Decimal, currency, payerRef string, _ map[string]string) (Hold, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Hold{}, &Error{Op: "authorize", Err: errors.New("amount must be positive")}
	}
	if payerRef == "" {
		return Hold{}, &Error{Op: "authorize", Err: errors.New("missing payer reference")}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := "sim_hold_" + uuid.NewString()
	g.holds[ref] = &simHold{amount: amount, currency: currency, payerRef: payerRef, status: simAuthorized}
	return Hold{Ref: ref, RawStatus: simAuthorized, Simulated: true}, nil
}

func (g *Simulated) Capture(_ context.Context, holdRef string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[holdRef]
	if !ok {
		return "", &Error{Op: "capture", Err: fmt.Errorf("unknown hold %s", holdRef)}
	}
	switch h.status {
	case simCaptured:
		// Idempotent: second capture returns the first result.
		return h.captureRef, nil
	case simCancelled:
		return "", &Error{Op: "capture", Err: errors.New("hold already cancelled")}
	}
	h.status = simCaptured
	h.captureRef = "sim_cap_" + uuid.NewString()
	return h.captureRef, nil
}

func (g *Simulated) Transfer(_ context.Context, amount decimal.Decimal, _, payeeRef string, _ map[string]string) (string, error) {
	if payeeRef == "" {
		return "", ErrNoPayableAccount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", &Error{Op: "transfer", Err: errors.New("amount must be positive")}
	}
	return "sim_tr_" + uuid.NewString(), nil
}

func (g *Simulated) CancelHold(_ context.Context, holdRef, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.holds[holdRef]
	if !ok {
		return "", &Error{Op: "cancel", Err: fmt.Errorf("unknown hold %s", holdRef)}
	}
	switch h.status {
	case simCancelled:
		// Safe to cancel twice.
		return h.cancelRef, nil
	case simCaptured:
		return "", &Error{Op: "cancel", Err: errors.New("hold already captured")}
	}
	h.status = simCancelled
	h.cancelRef = "sim_cxl_" + uuid.NewString()
	return h.cancelRef, nil
}
