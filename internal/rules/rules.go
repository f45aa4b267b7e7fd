// Package rules is the business rules provider: fee percentages, escrow
// timing, and bounty limits as pure configuration, plus the helpers that
// compute from them. No dependencies on the rest of the system.
package rules

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidBountyAmount is returned when a bounty is outside the allowed range.
var ErrInvalidBountyAmount = errors.New("invalid bounty amount")

// Rules holds the effective business configuration. Zero value is not
// usable; start from Default and override from config.
type Rules struct {
	PlatformFeeRate   decimal.Decimal // fraction of gross, e.g. 0.10
	MinBounty         decimal.Decimal
	MaxBounty         decimal.Decimal
	EscrowHoldDays    int
	DisputeWindowDays int
	AutoRefundExpired bool
	MaxClaimsPerDay   int
	StalePendingHours int
	WarningLeadDays   []int // days before expiry at which warnings fire
}

// Default returns the rules the platform runs with when no configuration
// is present.
func Default() Rules {
	return Rules{
		PlatformFeeRate:   decimal.NewFromFloat(0.10),
		MinBounty:         decimal.NewFromInt(1),
		MaxBounty:         decimal.NewFromInt(10000),
		EscrowHoldDays:    30,
		DisputeWindowDays: 7,
		AutoRefundExpired: true,
		MaxClaimsPerDay:   5,
		StalePendingHours: 48,
		WarningLeadDays:   []int{3, 1},
	}
}

// Commission computes the platform fee on a gross amount, rounded to the
// cent (half-cent rounds up).
func (r Rules) Commission(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.PlatformFeeRate).Round(2)
}

// Net returns what the finder receives: gross minus commission.
func (r Rules) Net(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(r.Commission(amount))
}

// ValidateBounty checks a bounty amount against the configured limits.
func (r Rules) ValidateBounty(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidBountyAmount
	}
	if amount.LessThan(r.MinBounty) || amount.GreaterThan(r.MaxBounty) {
		return ErrInvalidBountyAmount
	}
	return nil
}

// ReleaseDeadline is when an escrow hold placed now becomes eligible for
// automatic refund.
func (r Rules) ReleaseDeadline(now time.Time) time.Time {
	return now.Add(time.Duration(r.EscrowHoldDays) * 24 * time.Hour)
}

// DisputeDeadline is the last instant either party may open a dispute for
// a hold placed now.
func (r Rules) DisputeDeadline(now time.Time) time.Time {
	return now.Add(time.Duration(r.DisputeWindowDays) * 24 * time.Hour)
}

// StaleBefore is the cutoff for the stale-pending cleanup: transactions
// created before it never confirmed their hold.
func (r Rules) StaleBefore(now time.Time) time.Time {
	return now.Add(-time.Duration(r.StalePendingHours) * time.Hour)
}

// WarningWindow returns the calendar-day window [start, end) that is
// daysOut days from now, in UTC. Cases expiring inside it get a warning.
func (r Rules) WarningWindow(now time.Time, daysOut int) (time.Time, time.Time) {
	day := now.UTC().Truncate(24 * time.Hour).Add(time.Duration(daysOut) * 24 * time.Hour)
	return day, day.Add(24 * time.Hour)
}
