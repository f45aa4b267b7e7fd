package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, userID uuid.UUID, caseID *uuid.UUID, kind, title, body string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, case_id, kind, title, body)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), userID, caseID, kind, title, body)
	return err
}
