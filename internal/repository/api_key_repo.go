package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foundpay/backend/internal/models"
)

type APIKeyRepo struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepo(pool *pgxpool.Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// APIKeyWithUser is returned by FindByKeyHash (api_key joined with its user).
type APIKeyWithUser struct {
	APIKey models.APIKey
	User   models.User
}

func (r *APIKeyRepo) Create(ctx context.Context, k *models.APIKey) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`, k.ID, k.UserID, k.KeyHash, k.KeyPrefix, k.IsActive)
	return err
}

func (r *APIKeyRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE api_keys SET is_active = FALSE WHERE id = $1
	`, id)
	return err
}

// FindByKeyHash returns the api_key and joined user for the given key hash,
// or nil if not found or inactive.
func (r *APIKeyRepo) FindByKeyHash(ctx context.Context, keyHash string) (*APIKeyWithUser, error) {
	var out APIKeyWithUser
	err := r.pool.QueryRow(ctx, `
		SELECT k.id, k.user_id, k.key_hash, k.key_prefix, k.is_active,
		       u.id, u.email, u.name, u.password_hash, u.role, u.total_earnings, u.payout_account_ref, u.created_at, u.updated_at
		FROM api_keys k
		INNER JOIN users u ON u.id = k.user_id
		WHERE k.key_hash = $1 AND k.is_active = TRUE
	`, keyHash).Scan(
		&out.APIKey.ID, &out.APIKey.UserID, &out.APIKey.KeyHash, &out.APIKey.KeyPrefix, &out.APIKey.IsActive,
		&out.User.ID, &out.User.Email, &out.User.Name, &out.User.PasswordHash, &out.User.Role, &out.User.TotalEarnings, &out.User.PayoutAccountRef, &out.User.CreatedAt, &out.User.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
