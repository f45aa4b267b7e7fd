// Package scheduler drives the time-based escrow transitions: refunding
// expired holds, warning posters ahead of expiry, and cancelling stale
// pending transactions. Each task keys its work off durable status, so a
// duplicate run finds nothing left to do.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foundpay/backend/internal/models"
	"github.com/foundpay/backend/internal/notify"
	"github.com/foundpay/backend/internal/rules"
)

// Refund reason recorded by the expired-escrow sweep.
const ExpiredRefundReason = "Case expired - automatic refund"

// Cancel reason recorded by the stale-pending cleanup.
const StaleCancelReason = "Stale pending transaction - auto-cancelled"

// EscrowService is the subset of escrow operations the sweeper invokes.
type EscrowService interface {
	Refund(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error)
	CancelPending(ctx context.Context, txID uuid.UUID, reason string) (*models.Transaction, error)
}

// CaseStore is the case persistence the sweeper queries.
type CaseStore interface {
	FindExpiredHeld(ctx context.Context, now time.Time) ([]*models.Case, error)
	FindExpiringHeld(ctx context.Context, from, to time.Time) ([]*models.Case, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// TransactionStore is the transaction persistence the sweeper queries.
type TransactionStore interface {
	EscrowByCase(ctx context.Context, caseID uuid.UUID) (*models.Transaction, error)
	FindStalePending(ctx context.Context, before time.Time) ([]*models.Transaction, error)
}

// SweepError records one failed item; the rest of the batch continues.
type SweepError struct {
	ID  uuid.UUID `json:"id"`
	Err string    `json:"error"`
}

// SweepSummary is what each task run returns for observability.
type SweepSummary struct {
	Processed int          `json:"processed"`
	Errors    []SweepError `json:"errors,omitempty"`
}

// Sweeper implements the three reconciliation tasks. Pure logic; the
// River workers in this package wrap it for periodic execution.
type Sweeper struct {
	escrow   EscrowService
	cases    CaseStore
	txs      TransactionStore
	notifier notify.Notifier
	rules    rules.Rules
	log      *slog.Logger
}

func NewSweeper(escrow EscrowService, cases CaseStore, txs TransactionStore, notifier notify.Notifier, r rules.Rules, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{escrow: escrow, cases: cases, txs: txs, notifier: notifier, rules: r, log: log}
}

// RunExpiredSweep auto-refunds every expired held bounty and marks the
// case expired. A no-op when auto-refund-on-expiry is disabled. One slow
// or failing case never blocks the rest.
func (s *Sweeper) RunExpiredSweep(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary
	if !s.rules.AutoRefundExpired {
		return summary, nil
	}
	expired, err := s.cases.FindExpiredHeld(ctx, time.Now().UTC())
	if err != nil {
		return summary, err
	}
	for _, c := range expired {
		tx, err := s.txs.EscrowByCase(ctx, c.ID)
		if err != nil {
			s.fail(&summary, c.ID, "load escrow transaction", err)
			continue
		}
		if tx == nil {
			continue
		}
		if _, err := s.escrow.Refund(ctx, tx.ID, ExpiredRefundReason); err != nil {
			// Left as-is: the next sweep retries it.
			s.fail(&summary, c.ID, "refund expired escrow", err)
			continue
		}
		if err := s.cases.SetStatus(ctx, c.ID, models.CaseStatusExpired); err != nil {
			s.fail(&summary, c.ID, "mark case expired", err)
			continue
		}
		summary.Processed++
	}
	s.log.Info("expired escrow sweep done", "processed", summary.Processed, "errors", len(summary.Errors))
	return summary, nil
}

// RunExpiryWarnings sends one warning per case per configured lead time
// (e.g. 3 days and 1 day before expiry), only while an escrow transaction
// still exists for the case.
func (s *Sweeper) RunExpiryWarnings(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary
	now := time.Now().UTC()
	for _, daysOut := range s.rules.WarningLeadDays {
		from, to := s.rules.WarningWindow(now, daysOut)
		expiring, err := s.cases.FindExpiringHeld(ctx, from, to)
		if err != nil {
			return summary, err
		}
		for _, c := range expiring {
			tx, err := s.txs.EscrowByCase(ctx, c.ID)
			if err != nil {
				s.fail(&summary, c.ID, "load escrow transaction", err)
				continue
			}
			if tx == nil {
				continue
			}
			if err := s.notifier.ExpiryWarning(ctx, c.PosterID, c.ID, c.Title, c.BountyAmount, daysOut); err != nil {
				s.fail(&summary, c.ID, "send expiry warning", err)
				continue
			}
			summary.Processed++
		}
	}
	s.log.Info("expiry warning pass done", "processed", summary.Processed, "errors", len(summary.Errors))
	return summary, nil
}

// RunStaleCleanup cancels bounty payments stuck in pending past the
// staleness threshold; the hold was never confirmed.
func (s *Sweeper) RunStaleCleanup(ctx context.Context) (SweepSummary, error) {
	var summary SweepSummary
	cutoff := s.rules.StaleBefore(time.Now().UTC())
	stale, err := s.txs.FindStalePending(ctx, cutoff)
	if err != nil {
		return summary, err
	}
	for _, tx := range stale {
		if _, err := s.escrow.CancelPending(ctx, tx.ID, StaleCancelReason); err != nil {
			s.fail(&summary, tx.ID, "cancel stale pending", err)
			continue
		}
		summary.Processed++
	}
	s.log.Info("stale pending cleanup done", "processed", summary.Processed, "errors", len(summary.Errors))
	return summary, nil
}

func (s *Sweeper) fail(summary *SweepSummary, id uuid.UUID, op string, err error) {
	s.log.Error(op+" failed", "id", id, "error", err)
	summary.Errors = append(summary.Errors, SweepError{ID: id, Err: fmt.Sprintf("%s: %v", op, err)})
}
