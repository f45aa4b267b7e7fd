package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User roles.
const (
	RolePoster = "poster"
	RoleFinder = "finder"
	RoleAdmin  = "admin"
)

// User carries only the fields the escrow core needs: identity, role,
// earnings accumulator, and the external payout account reference.
// An empty PayoutAccountRef means the user cannot receive a transfer.
type User struct {
	ID               uuid.UUID       `json:"id"`
	Email            string          `json:"email"`
	Name             string          `json:"name"`
	PasswordHash     string          `json:"-"`
	Role             string          `json:"role"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	PayoutAccountRef string          `json:"payout_account_ref,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
