// Package escrow owns the bounty transaction state machine:
//
//	pending → escrow → {completed | refunded | disputed}
//	disputed → {completed | refunded}   (admin resolution)
//	pending → cancelled                 (staleness timeout)
//
// Every status mutation goes through a compare-and-swap on the durable
// status column; the loser of a concurrent transition gets
// ErrInvalidTransactionState. Gateway successes are persisted before any
// dependent side effect (earnings, case sync) is applied.
package escrow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foundpay/backend/internal/gateway"
	"github.com/foundpay/backend/internal/models"
	"github.com/foundpay/backend/internal/rules"
)

const minDisputeReasonLen = 10

// TransactionStore is the persistence contract for transactions. Lookup
// methods return (nil, nil) when the row does not exist.
type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Transaction, error)
	HasOpenForCase(ctx context.Context, caseID uuid.UUID) (bool, error)
	// UpdateStatusCAS flips status from expected to next in one statement.
	// Returns false when the row was not in the expected status.
	UpdateStatusCAS(ctx context.Context, id uuid.UUID, expected, next string) (bool, error)
	Update(ctx context.Context, t *models.Transaction) error
}

// CaseStore is the subset of case persistence the escrow service needs.
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
	SetBountyStatus(ctx context.Context, id uuid.UUID, bountyStatus string) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// ClaimStore resolves and completes finder claims.
type ClaimStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error)
	MarkCompleted(ctx context.Context, id, transactionID uuid.UUID) error
	ExistsForCase(ctx context.Context, caseID, finderID uuid.UUID) (bool, error)
}

// UserStore is the subset of user persistence the escrow service needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AddEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

// Service is the escrow state machine.
type Service struct {
	txs    TransactionStore
	cases  CaseStore
	claims ClaimStore
	users  UserStore
	gw     gateway.Gateway
	rules  rules.Rules
	log    *slog.Logger
}

func NewService(txs TransactionStore, cases CaseStore, claims ClaimStore, users UserStore, gw gateway.Gateway, r rules.Rules, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{txs: txs, cases: cases, claims: claims, users: users, gw: gw, rules: r, log: log}
}

// CreateHold authorizes a hold for the case bounty against the poster's
// payment method and persists the transaction. Commission is computed once
// here and never recomputed. On authorization success the transaction is
// confirmed into escrow synchronously and the case bounty marked held.
func (s *Service) CreateHold(ctx context.Context, caseID, posterID uuid.UUID) (*models.Transaction, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCaseNotFound
	}
	if c.PosterID != posterID {
		return nil, ErrUnauthorized
	}
	if err := s.rules.ValidateBounty(c.BountyAmount); err != nil {
		return nil, err
	}
	open, err := s.txs.HasOpenForCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrDuplicateEscrow
	}

	commission := s.rules.Commission(c.BountyAmount)

	hold, err := s.gw.AuthorizeHold(ctx, c.BountyAmount, c.Currency, posterID.String(), map[string]string{
		"case_id":   caseID.String(),
		"poster_id": posterID.String(),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	deadline := s.rules.ReleaseDeadline(now)
	t := &models.Transaction{
		ID:                 uuid.New(),
		CaseID:             caseID,
		PosterID:           posterID,
		Type:               models.TransactionTypeBountyPayment,
		Amount:             c.BountyAmount,
		PlatformCommission: commission,
		NetAmount:          c.BountyAmount.Sub(commission),
		Currency:           c.Currency,
		Status:             models.TransactionStatusPending,
		GatewayHoldRef:     hold.Ref,
		Metadata: models.TransactionMetadata{
			Simulated:         hold.Simulated,
			EscrowReleaseDate: &deadline,
		},
	}
	if err := s.txs.Create(ctx, t); err != nil {
		return nil, err
	}

	// Authorization already succeeded, so confirm synchronously.
	swapped, err := s.txs.UpdateStatusCAS(ctx, t.ID, models.TransactionStatusPending, models.TransactionStatusEscrow)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrInvalidTransactionState
	}
	t.Status = models.TransactionStatusEscrow
	if err := s.cases.SetBountyStatus(ctx, caseID, models.BountyStatusHeld); err != nil {
		return nil, err
	}

	s.log.Info("escrow hold created", "transaction_id", t.ID, "case_id", caseID, "amount", t.Amount, "hold_ref", hold.Ref)
	return t, nil
}

// Release captures the held amount and transfers the net to the finder.
func (s *Service) Release(ctx context.Context, txID, finderID uuid.UUID, claimID *uuid.UUID) (*models.Transaction, error) {
	return s.release(ctx, txID, finderID, claimID, models.TransactionStatusEscrow)
}

// release is the single transition shared by the direct path (from
// escrow) and dispute resolution (from disputed). Capture and transfer
// are one logical unit: any gateway failure leaves the transaction in its
// prior status with no ledger mutation.
func (s *Service) release(ctx context.Context, txID, finderID uuid.UUID, claimID *uuid.UUID, from string) (*models.Transaction, error) {
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if t.Status != from {
		return nil, ErrInvalidTransactionState
	}
	finder, err := s.users.GetByID(ctx, finderID)
	if err != nil {
		return nil, err
	}
	if finder == nil {
		return nil, ErrFinderNotFound
	}
	var claim *models.Claim
	if claimID != nil {
		claim, err = s.claims.GetByID(ctx, *claimID)
		if err != nil {
			return nil, err
		}
		if claim == nil {
			return nil, ErrClaimNotFound
		}
	}

	captureRef, err := s.gw.Capture(ctx, t.GatewayHoldRef)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if finder.PayoutAccountRef == "" {
		// Capture succeeded but there is nowhere to send the net amount.
		// Park the transaction instead of marking it complete; an operator
		// must finish the payout by hand.
		swapped, err := s.txs.UpdateStatusCAS(ctx, t.ID, from, models.TransactionStatusPayoutPending)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, ErrInvalidTransactionState
		}
		t.Status = models.TransactionStatusPayoutPending
		t.FinderID = &finderID
		t.ClaimID = claimID
		t.Metadata.CaptureRef = captureRef
		t.Metadata.TransferSkipped = true
		if err := s.txs.Update(ctx, t); err != nil {
			return nil, err
		}
		s.log.Warn("escrow captured but transfer skipped: finder has no payable account",
			"transaction_id", t.ID, "finder_id", finderID)
		return t, nil
	}

	transferRef, err := s.gw.Transfer(ctx, t.NetAmount, t.Currency, finder.PayoutAccountRef, map[string]string{
		"transaction_id": t.ID.String(),
		"case_id":        t.CaseID.String(),
	})
	if err != nil {
		return nil, err
	}

	swapped, err := s.txs.UpdateStatusCAS(ctx, t.ID, from, models.TransactionStatusCompleted)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrInvalidTransactionState
	}
	t.Status = models.TransactionStatusCompleted
	t.FinderID = &finderID
	t.ClaimID = claimID
	t.Metadata.CaptureRef = captureRef
	t.Metadata.TransferRef = transferRef
	t.Metadata.ReleasedAt = &now
	if err := s.txs.Update(ctx, t); err != nil {
		return nil, err
	}

	if err := s.users.AddEarnings(ctx, finderID, t.NetAmount); err != nil {
		return nil, err
	}
	if err := s.cases.SetBountyStatus(ctx, t.CaseID, models.BountyStatusPaid); err != nil {
		return nil, err
	}
	if err := s.cases.SetStatus(ctx, t.CaseID, models.CaseStatusResolved); err != nil {
		return nil, err
	}
	if claim != nil {
		if err := s.claims.MarkCompleted(ctx, claim.ID, t.ID); err != nil {
			return nil, err
		}
	}

	s.log.Info("escrow released", "transaction_id", t.ID, "finder_id", finderID, "net_amount", t.NetAmount)
	return t, nil
}

// Refund cancels the gateway hold, returning funds to the poster without
// ever capturing them. Allowed from escrow or pending.
func (s *Service) Refund(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error) {
	return s.refund(ctx, txID, reason, "")
}

// refund is shared by the direct path and dispute resolution. When from is
// empty the transaction's own status is used (escrow or pending only).
func (s *Service) refund(ctx context.Context, txID uuid.UUID, reason, from string) (*models.Transaction, error) {
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if from == "" {
		if t.Status != models.TransactionStatusEscrow && t.Status != models.TransactionStatusPending {
			return nil, ErrInvalidTransactionState
		}
		from = t.Status
	} else if t.Status != from {
		return nil, ErrInvalidTransactionState
	}

	cancelRef, err := s.gw.CancelHold(ctx, t.GatewayHoldRef, reason)
	if err != nil {
		return nil, err
	}

	swapped, err := s.txs.UpdateStatusCAS(ctx, t.ID, from, models.TransactionStatusRefunded)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrInvalidTransactionState
	}
	now := time.Now().UTC()
	t.Status = models.TransactionStatusRefunded
	t.Metadata.RefundedAt = &now
	t.Metadata.RefundReason = reason
	t.Metadata.CancelRef = cancelRef
	if err := s.txs.Update(ctx, t); err != nil {
		return nil, err
	}
	if err := s.cases.SetBountyStatus(ctx, t.CaseID, models.BountyStatusRefunded); err != nil {
		return nil, err
	}

	s.log.Info("escrow refunded", "transaction_id", t.ID, "reason", reason)
	return t, nil
}

// CancelPending cancels a transaction that never confirmed its hold.
// Used by the stale-pending cleanup.
func (s *Service) CancelPending(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error) {
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if t.Status != models.TransactionStatusPending {
		return nil, ErrInvalidTransactionState
	}
	if t.GatewayHoldRef != "" {
		if _, err := s.gw.CancelHold(ctx, t.GatewayHoldRef, reason); err != nil {
			return nil, err
		}
	}
	swapped, err := s.txs.UpdateStatusCAS(ctx, t.ID, models.TransactionStatusPending, models.TransactionStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrInvalidTransactionState
	}
	t.Status = models.TransactionStatusCancelled
	t.Metadata.CancelReason = reason
	if err := s.txs.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenDispute moves an escrow transaction into disputed. Only the poster
// or a finder involved with the case may open one.
func (s *Service) OpenDispute(ctx context.Context, txID, userID uuid.UUID, reason string) (*models.Transaction, error) {
	if len(strings.TrimSpace(reason)) < minDisputeReasonLen {
		return nil, ErrReasonTooShort
	}
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if t.Status != models.TransactionStatusEscrow {
		return nil, ErrInvalidTransactionState
	}
	c, err := s.cases.GetByID(ctx, t.CaseID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCaseNotFound
	}

	involved := userID == c.PosterID || (t.FinderID != nil && userID == *t.FinderID)
	if !involved {
		// A finder is involved through a claim on the case even before
		// the transaction is assigned to them.
		ok, err := s.claims.ExistsForCase(ctx, t.CaseID, userID)
		if err != nil {
			return nil, err
		}
		involved = ok
	}
	if !involved {
		return nil, ErrUnauthorized
	}

	swapped, err := s.txs.UpdateStatusCAS(ctx, t.ID, models.TransactionStatusEscrow, models.TransactionStatusDisputed)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrInvalidTransactionState
	}
	now := time.Now().UTC()
	t.Status = models.TransactionStatusDisputed
	t.Metadata.Dispute = &models.DisputeRecord{
		OpenedAt: now,
		OpenedBy: userID,
		Reason:   reason,
		Status:   models.DisputeStatusOpen,
	}
	if err := s.txs.Update(ctx, t); err != nil {
		return nil, err
	}
	if err := s.cases.SetStatus(ctx, t.CaseID, models.CaseStatusDisputed); err != nil {
		return nil, err
	}
	if err := s.cases.SetBountyStatus(ctx, t.CaseID, models.BountyStatusDisputed); err != nil {
		return nil, err
	}

	s.log.Info("dispute opened", "transaction_id", t.ID, "opened_by", userID)
	return t, nil
}

// ResolveDispute settles a disputed transaction by delegating to the same
// transition functions the direct release/refund paths use, so side
// effects are identical regardless of entry path. Admin only (enforced by
// the HTTP surface); adminID is recorded on the dispute.
func (s *Service) ResolveDispute(ctx context.Context, txID uuid.UUID, resolution string, adminID uuid.UUID, finderID *uuid.UUID) (*models.Transaction, error) {
	t, err := s.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	if t.Status != models.TransactionStatusDisputed {
		return nil, ErrInvalidTransactionState
	}

	switch resolution {
	case models.ResolutionReleaseToFinder:
		if finderID == nil {
			return nil, ErrInvalidResolution
		}
		t, err = s.release(ctx, txID, *finderID, t.ClaimID, models.TransactionStatusDisputed)
	case models.ResolutionRefundToPoster:
		t, err = s.refund(ctx, txID, "Dispute resolved - refund to poster", models.TransactionStatusDisputed)
	default:
		return nil, ErrInvalidResolution
	}
	if err != nil {
		return nil, err
	}

	if t.Metadata.Dispute != nil {
		now := time.Now().UTC()
		t.Metadata.Dispute.Status = models.DisputeStatusResolved
		t.Metadata.Dispute.ResolvedAt = &now
		t.Metadata.Dispute.ResolvedBy = &adminID
		t.Metadata.Dispute.Resolution = resolution
		if err := s.txs.Update(ctx, t); err != nil {
			return nil, err
		}
	}

	s.log.Info("dispute resolved", "transaction_id", t.ID, "resolution", resolution, "resolved_by", adminID)
	return t, nil
}

// TransactionSummary is one history line in the status projection.
type TransactionSummary struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"transaction_type"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// StatusProjection is the read-only escrow view for a case.
type StatusProjection struct {
	CaseID             uuid.UUID            `json:"case_id"`
	Status             string               `json:"status"`
	Amount             decimal.Decimal      `json:"amount"`
	PlatformCommission decimal.Decimal      `json:"platform_commission"`
	NetAmount          decimal.Decimal      `json:"net_amount"`
	Currency           string               `json:"currency"`
	CanDispute         bool                 `json:"can_dispute"`
	History            []TransactionSummary `json:"history"`
}

// Status projects the most recent transaction for the case plus its full
// history. No side effects.
func (s *Service) Status(ctx context.Context, caseID uuid.UUID) (*StatusProjection, error) {
	history, err := s.txs.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	out := &StatusProjection{
		CaseID:  caseID,
		Status:  models.BountyStatusNone,
		History: make([]TransactionSummary, 0, len(history)),
	}
	for _, t := range history {
		out.History = append(out.History, TransactionSummary{
			ID:        t.ID,
			Type:      t.Type,
			Status:    t.Status,
			Amount:    t.Amount,
			CreatedAt: t.CreatedAt,
		})
	}
	if len(history) == 0 {
		return out, nil
	}
	latest := history[0] // ListByCase orders newest first
	out.Status = latest.Status
	out.Amount = latest.Amount
	out.PlatformCommission = latest.PlatformCommission
	out.NetAmount = latest.NetAmount
	out.Currency = latest.Currency
	if latest.Status == models.TransactionStatusEscrow {
		rd := latest.Metadata.EscrowReleaseDate
		out.CanDispute = rd == nil || time.Now().Before(*rd)
	}
	return out, nil
}
