package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/foundpay/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, total_earnings, payout_account_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.TotalEarnings, u.PayoutAccountRef).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, total_earnings, payout_account_ref, created_at, updated_at
		FROM users WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, total_earnings, payout_account_ref, created_at, updated_at
		FROM users WHERE email = $1
	`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// AddEarnings atomically increments the earnings accumulator.
func (r *UserRepo) AddEarnings(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET total_earnings = total_earnings + $2, updated_at = now() WHERE id = $1
	`, id, amount)
	return err
}

func (r *UserRepo) SetPayoutAccountRef(ctx context.Context, id uuid.UUID, ref string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET payout_account_ref = $2, updated_at = now() WHERE id = $1
	`, id, ref)
	return err
}

func (r *UserRepo) scanOne(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.TotalEarnings, &u.PayoutAccountRef, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
