package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ClaimStatusPending   = "pending"
	ClaimStatusApproved  = "approved"
	ClaimStatusRejected  = "rejected"
	ClaimStatusCompleted = "completed"
)

// Claim links a finder's proof-of-ownership submission to a case, and once
// the bounty is released, to the completed transaction.
type Claim struct {
	ID            uuid.UUID  `json:"id"`
	CaseID        uuid.UUID  `json:"case_id"`
	FinderID      uuid.UUID  `json:"finder_id"`
	Status        string     `json:"status"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
