package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundpay/backend/internal/models"
)

type ClaimRepo struct {
	pool *pgxpool.Pool
}

func NewClaimRepo(pool *pgxpool.Pool) *ClaimRepo {
	return &ClaimRepo{pool: pool}
}

func (r *ClaimRepo) Create(ctx context.Context, c *models.Claim) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO claims (id, case_id, finder_id, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, c.ID, c.CaseID, c.FinderID, c.Status, c.TransactionID).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ClaimRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	var c models.Claim
	err := r.pool.QueryRow(ctx, `
		SELECT id, case_id, finder_id, status, transaction_id, created_at, updated_at
		FROM claims WHERE id = $1
	`, id).Scan(&c.ID, &c.CaseID, &c.FinderID, &c.Status, &c.TransactionID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkCompleted records the completed transaction on the claim.
func (r *ClaimRepo) MarkCompleted(ctx context.Context, id, transactionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE claims SET status = 'completed', transaction_id = $2, updated_at = now() WHERE id = $1
	`, id, transactionID)
	return err
}

// ExistsForCase reports whether the finder has any claim on the case.
func (r *ClaimRepo) ExistsForCase(ctx context.Context, caseID, finderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM claims WHERE case_id = $1 AND finder_id = $2)
	`, caseID, finderID).Scan(&exists)
	return exists, err
}

// CountTodayByFinder counts claims the finder created today (UTC), for the
// max-claims-per-day rule.
func (r *ClaimRepo) CountTodayByFinder(ctx context.Context, finderID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM claims WHERE finder_id = $1 AND created_at >= CURRENT_DATE
	`, finderID).Scan(&n)
	return n, err
}
