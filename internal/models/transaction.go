package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction type and status enums.
const (
	TransactionTypeBountyPayment = "bounty_payment"
	TransactionTypeRefund        = "refund"
	TransactionTypeTip           = "tip"

	TransactionStatusPending   = "pending"
	TransactionStatusEscrow    = "escrow"
	TransactionStatusCompleted = "completed"
	TransactionStatusRefunded  = "refunded"
	TransactionStatusDisputed  = "disputed"
	TransactionStatusCancelled = "cancelled"

	// TransactionStatusPayoutPending marks a release where the hold was
	// captured but the finder had no payable account, so the transfer was
	// skipped. Non-terminal: requires operator follow-up.
	TransactionStatusPayoutPending = "payout_pending"
)

// Dispute resolution values accepted by ResolveDispute.
const (
	ResolutionReleaseToFinder = "release_to_finder"
	ResolutionRefundToPoster  = "refund_to_poster"

	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// DisputeRecord lives inside transaction metadata while a dispute is open
// or after it has been resolved.
type DisputeRecord struct {
	OpenedAt   time.Time  `json:"opened_at"`
	OpenedBy   uuid.UUID  `json:"opened_by"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
}

// TransactionMetadata is stored as jsonb on the transactions row.
type TransactionMetadata struct {
	Simulated         bool           `json:"simulated,omitempty"`
	EscrowReleaseDate *time.Time     `json:"escrow_release_date,omitempty"`
	ReleasedAt        *time.Time     `json:"released_at,omitempty"`
	RefundedAt        *time.Time     `json:"refunded_at,omitempty"`
	RefundReason      string         `json:"refund_reason,omitempty"`
	CancelReason      string         `json:"cancel_reason,omitempty"`
	CaptureRef        string         `json:"capture_ref,omitempty"`
	TransferRef       string         `json:"transfer_ref,omitempty"`
	CancelRef         string         `json:"cancel_ref,omitempty"`
	TransferSkipped   bool           `json:"transfer_skipped,omitempty"`
	Dispute           *DisputeRecord `json:"dispute,omitempty"`
}

// Transaction is the escrow ledger entry for a case bounty.
// Invariant: NetAmount = Amount - PlatformCommission, fixed at creation.
type Transaction struct {
	ID                 uuid.UUID           `json:"id"`
	CaseID             uuid.UUID           `json:"case_id"`
	PosterID           uuid.UUID           `json:"poster_id"`
	FinderID           *uuid.UUID          `json:"finder_id,omitempty"`
	ClaimID            *uuid.UUID          `json:"claim_id,omitempty"`
	Type               string              `json:"transaction_type"`
	Amount             decimal.Decimal     `json:"amount"`
	PlatformCommission decimal.Decimal     `json:"platform_commission"`
	NetAmount          decimal.Decimal     `json:"net_amount"`
	Currency           string              `json:"currency"`
	Status             string              `json:"status"`
	GatewayHoldRef     string              `json:"gateway_hold_ref,omitempty"`
	Metadata           TransactionMetadata `json:"metadata"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// TerminalStatus reports whether status is one of the three terminal states.
func TerminalStatus(status string) bool {
	switch status {
	case TransactionStatusCompleted, TransactionStatusRefunded, TransactionStatusCancelled:
		return true
	}
	return false
}
