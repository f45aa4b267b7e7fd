package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundpay/backend/internal/models"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) Create(ctx context.Context, t *models.Transaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, case_id, poster_id, finder_id, claim_id, transaction_type, amount, platform_commission, net_amount, currency, status, gateway_hold_ref, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, t.ID, t.CaseID, t.PosterID, t.FinderID, t.ClaimID, t.Type, t.Amount, t.PlatformCommission, t.NetAmount, t.Currency, t.Status, t.GatewayHoldRef, t.Metadata).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, case_id, poster_id, finder_id, claim_id, transaction_type, amount, platform_commission, net_amount, currency, status, gateway_hold_ref, metadata, created_at, updated_at
		FROM transactions WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *TransactionRepo) Update(ctx context.Context, t *models.Transaction) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE transactions SET finder_id = $2, claim_id = $3, status = $4, gateway_hold_ref = $5, metadata = $6, updated_at = now()
		WHERE id = $1
	`, t.ID, t.FinderID, t.ClaimID, t.Status, t.GatewayHoldRef, t.Metadata)
	return err
}

// UpdateStatusCAS flips status in a single conditional UPDATE so concurrent
// transitions on the same transaction serialize on the row; the loser sees
// zero rows affected.
func (r *TransactionRepo) UpdateStatusCAS(ctx context.Context, id uuid.UUID, expected, next string) (bool, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE transactions SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, expected, next)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *TransactionRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, poster_id, finder_id, claim_id, transaction_type, amount, platform_commission, net_amount, currency, status, gateway_hold_ref, metadata, created_at, updated_at
		FROM transactions WHERE case_id = $1 ORDER BY created_at DESC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// HasOpenForCase reports whether the case already has a pending or escrow
// transaction.
func (r *TransactionRepo) HasOpenForCase(ctx context.Context, caseID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE case_id = $1 AND status IN ('pending', 'escrow')
		)
	`, caseID).Scan(&exists)
	return exists, err
}

// EscrowByCase returns the most recent escrow transaction for the case, or
// nil when none exists.
func (r *TransactionRepo) EscrowByCase(ctx context.Context, caseID uuid.UUID) (*models.Transaction, error) {
	t, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, case_id, poster_id, finder_id, claim_id, transaction_type, amount, platform_commission, net_amount, currency, status, gateway_hold_ref, metadata, created_at, updated_at
		FROM transactions WHERE case_id = $1 AND status = 'escrow'
		ORDER BY created_at DESC LIMIT 1
	`, caseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// FindStalePending returns bounty payments still pending that were created
// before the cutoff (the hold was never confirmed).
func (r *TransactionRepo) FindStalePending(ctx context.Context, before time.Time) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, case_id, poster_id, finder_id, claim_id, transaction_type, amount, platform_commission, net_amount, currency, status, gateway_hold_ref, metadata, created_at, updated_at
		FROM transactions
		WHERE transaction_type = 'bounty_payment' AND status = 'pending' AND created_at < $1
		ORDER BY created_at
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *TransactionRepo) scanOne(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.CaseID, &t.PosterID, &t.FinderID, &t.ClaimID, &t.Type, &t.Amount, &t.PlatformCommission, &t.NetAmount, &t.Currency, &t.Status, &t.GatewayHoldRef, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) scanAll(rows pgx.Rows) ([]*models.Transaction, error) {
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.CaseID, &t.PosterID, &t.FinderID, &t.ClaimID, &t.Type, &t.Amount, &t.PlatformCommission, &t.NetAmount, &t.Currency, &t.Status, &t.GatewayHoldRef, &t.Metadata, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
