package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Case status and bounty_status enums.
const (
	CaseStatusActive   = "active"
	CaseStatusResolved = "resolved"
	CaseStatusExpired  = "expired"
	CaseStatusDisputed = "disputed"
	CaseStatusArchived = "archived"

	BountyStatusNone     = "none"
	BountyStatusHeld     = "held"
	BountyStatusPaid     = "paid"
	BountyStatusRefunded = "refunded"
	BountyStatusDisputed = "disputed"
)

// Case is a lost/found listing that owns at most one active bounty transaction.
// BountyStatus tracks the linked transaction: held ⇔ escrow, paid ⇔ completed,
// refunded ⇔ refunded, disputed ⇔ disputed.
type Case struct {
	ID           uuid.UUID       `json:"id"`
	PosterID     uuid.UUID       `json:"poster_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	BountyAmount decimal.Decimal `json:"bounty_amount"`
	Currency     string          `json:"currency"`
	BountyStatus string          `json:"bounty_status"`
	Status       string          `json:"status"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
