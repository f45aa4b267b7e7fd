package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationExpiryWarning = "escrow_expiry_warning"
)

// Notification is a persisted message for a user. Delivery (push/email/SMS)
// is handled by an external system reading this table.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	CaseID    *uuid.UUID `json:"case_id,omitempty"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}
