package notifications

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/enrollment/internal/models"
)

// Repository handles notification_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one delivery attempt.
func (r *Repository) Insert(ctx context.Context, l *models.NotificationLog) error {
	const q = `INSERT INTO notification_logs (job_id, template, event_id, registration_id, member_id, status, attempt, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, l.JobID, l.Template, l.EventID, l.RegistrationID, l.MemberID, l.Status, l.Attempt, l.ErrorMessage, l.SentAt).
		Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}
