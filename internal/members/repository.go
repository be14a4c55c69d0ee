// Package members reads the members enrolled in events.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/enrollment/internal/models"
)

// Repository handles member persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a member repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a member by ID, or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	const q = `SELECT id, first_name, last_name, email, role, birth_date, guardian_id, created_at FROM members WHERE id = $1`
	var m models.Member
	var role string
	err := r.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &role, &m.BirthDate, &m.GuardianID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select member: %w", err)
	}
	m.Role = models.Role(role)
	return &m, nil
}
