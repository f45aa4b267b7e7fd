package models

import (
	"github.com/google/uuid"
)

// APIKey authenticates machine callers (ops tooling, cron triggers).
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	KeyHash   string    `json:"-"`
	KeyPrefix string    `json:"key_prefix"`
	IsActive  bool      `json:"is_active"`
}
