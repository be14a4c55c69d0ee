// Package events persists events and expands them into occurrences.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/pkg/apperr"
)

const eventColumns = `id, title, date_debut, date_fin, date_fin_inscription,
	capacity_total, capacity_waitlist, capacity_notify_threshold, capacity_notified,
	requires_validation, allow_guardian_registration, age_min, age_max, created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Find returns an event by ID, or nil.
func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	err := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id).
		Scan(&e.ID, &e.Title, &e.DateDebut, &e.DateFin, &e.DateFinInscription,
			&e.CapacityTotal, &e.CapacityWaitlist, &e.CapacityNotifyThreshold, &e.CapacityNotified,
			&e.RequiresValidation, &e.AllowGuardianRegistration, &e.AgeMin, &e.AgeMax, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select event: %w", err)
	}
	return &e, nil
}

// Update applies the non-nil fields of patch.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, patch models.EventPatch) error {
	if patch.CapacityNotified == nil {
		return nil
	}
	const q = `UPDATE events SET capacity_notified = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, q, *patch.CapacityNotified, id)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("event not found")
	}
	return nil
}
