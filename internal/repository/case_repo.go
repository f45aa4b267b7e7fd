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

type CaseRepo struct {
	pool *pgxpool.Pool
}

func NewCaseRepo(pool *pgxpool.Pool) *CaseRepo {
	return &CaseRepo{pool: pool}
}

func (r *CaseRepo) Create(ctx context.Context, c *models.Case) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO cases (id, poster_id, title, description, bounty_amount, currency, bounty_status, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, c.ID, c.PosterID, c.Title, c.Description, c.BountyAmount, c.Currency, c.BountyStatus, c.Status, c.ExpiresAt).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *CaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	c, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, poster_id, title, description, bounty_amount, currency, bounty_status, status, expires_at, created_at, updated_at
		FROM cases WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *CaseRepo) SetBountyStatus(ctx context.Context, id uuid.UUID, bountyStatus string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cases SET bounty_status = $2, updated_at = now() WHERE id = $1
	`, id, bountyStatus)
	return err
}

func (r *CaseRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cases SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}

// FindExpiredHeld returns active cases with a held bounty whose expiry is
// in the past. The expired-escrow sweep keys off this query, so a second
// run after refunds finds zero rows.
func (r *CaseRepo) FindExpiredHeld(ctx context.Context, now time.Time) ([]*models.Case, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, poster_id, title, description, bounty_amount, currency, bounty_status, status, expires_at, created_at, updated_at
		FROM cases
		WHERE status = 'active' AND bounty_status = 'held' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// FindExpiringHeld returns active cases with a held bounty expiring inside
// [from, to).
func (r *CaseRepo) FindExpiringHeld(ctx context.Context, from, to time.Time) ([]*models.Case, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, poster_id, title, description, bounty_amount, currency, bounty_status, status, expires_at, created_at, updated_at
		FROM cases
		WHERE status = 'active' AND bounty_status = 'held' AND expires_at >= $1 AND expires_at < $2
		ORDER BY expires_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *CaseRepo) scanOne(row pgx.Row) (*models.Case, error) {
	var c models.Case
	err := row.Scan(&c.ID, &c.PosterID, &c.Title, &c.Description, &c.BountyAmount, &c.Currency, &c.BountyStatus, &c.Status, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CaseRepo) scanAll(rows pgx.Rows) ([]*models.Case, error) {
	var list []*models.Case
	for rows.Next() {
		var c models.Case
		if err := rows.Scan(&c.ID, &c.PosterID, &c.Title, &c.Description, &c.BountyAmount, &c.Currency, &c.BountyStatus, &c.Status, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
