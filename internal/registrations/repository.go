package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/pkg/apperr"
	"github.com/aura-events/enrollment/pkg/database"
)

const activePairConstraint = "registrations_active_pair"

const registrationColumns = `id, event_id, member_id, guardian_id, status, notes,
	payment_status, payment_method, payment_recorded_at, payment_recorded_by, payment_reference,
	attendance, created_at, updated_at`

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registrations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var (
		reg        models.Registration
		status     string
		attendance *string
	)
	err := row.Scan(&reg.ID, &reg.EventID, &reg.MemberID, &reg.GuardianID, &status, &reg.Notes,
		&reg.Payment.Status, &reg.Payment.Method, &reg.Payment.RecordedAt, &reg.Payment.RecordedBy, &reg.Payment.Reference,
		&attendance, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	reg.Status = models.RegistrationStatus(status)
	if attendance != nil && *attendance != "" {
		reg.Attendance = []byte(*attendance)
	}
	return &reg, nil
}

func (r *Repository) queryOne(ctx context.Context, q string, args ...any) (*models.Registration, error) {
	reg, err := scanRegistration(r.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return reg, err
}

// Create inserts a registration. A second active registration for the same pair is a Conflict.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, event_id, member_id, guardian_id, status, notes, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING updated_at`
	paymentStatus := reg.Payment.Status
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusUnpaid
	}
	err := r.pool.QueryRow(ctx, q, reg.ID, reg.EventID, reg.MemberID, reg.GuardianID, string(reg.Status), reg.Notes, paymentStatus, reg.CreatedAt).
		Scan(&reg.UpdatedAt)
	if database.IsUniqueViolation(err, activePairConstraint) {
		return apperr.Conflict("member already has an active registration for this event").WithDetail(apperr.DetailDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	reg.Payment.Status = paymentStatus
	return nil
}

// GetByID returns a registration by ID, or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := r.queryOne(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("select registration: %w", err)
	}
	return reg, nil
}

// FindActive returns the non-cancelled registration of the pair, or nil.
func (r *Repository) FindActive(ctx context.Context, eventID, memberID uuid.UUID) (*models.Registration, error) {
	reg, err := r.queryOne(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 AND member_id = $2 AND status <> $3
		ORDER BY created_at DESC, id DESC LIMIT 1`, eventID, memberID, string(models.StatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("select active registration: %w", err)
	}
	return reg, nil
}

// LatestForMember returns the most recently created registration of the pair, or nil.
func (r *Repository) LatestForMember(ctx context.Context, eventID, memberID uuid.UUID) (*models.Registration, error) {
	reg, err := r.queryOne(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 AND member_id = $2
		ORDER BY created_at DESC, id DESC LIMIT 1`, eventID, memberID)
	if err != nil {
		return nil, fmt.Errorf("select latest registration: %w", err)
	}
	return reg, nil
}

// OldestWaitlisted returns the first registration in line on the waitlist, or nil.
func (r *Repository) OldestWaitlisted(ctx context.Context, eventID uuid.UUID) (*models.Registration, error) {
	reg, err := r.queryOne(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC LIMIT 1`, eventID, string(models.StatusWaitlisted))
	if err != nil {
		return nil, fmt.Errorf("select waitlisted registration: %w", err)
	}
	return reg, nil
}

// ListByEvent returns all registrations for an event, oldest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 ORDER BY created_at ASC, id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		list = append(list, *reg)
	}
	return list, rows.Err()
}

// CountByStatus tallies the registrations of an event by status.
func (r *Repository) CountByStatus(ctx context.Context, eventID uuid.UUID) (models.StatusCounts, error) {
	const q = `SELECT
		COUNT(*) FILTER (WHERE status = 'pending'),
		COUNT(*) FILTER (WHERE status = 'confirmed'),
		COUNT(*) FILTER (WHERE status = 'waitlisted'),
		COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM registrations WHERE event_id = $1`
	var c models.StatusCounts
	if err := r.pool.QueryRow(ctx, q, eventID).Scan(&c.Pending, &c.Confirmed, &c.Waitlisted, &c.Cancelled); err != nil {
		return models.StatusCounts{}, fmt.Errorf("count registrations: %w", err)
	}
	return c, nil
}

// UpdateStatus sets the status of a registration.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) error {
	const q = `UPDATE registrations SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, q, string(status), id)
	if database.IsUniqueViolation(err, activePairConstraint) {
		return apperr.Conflict("member already has an active registration for this event").WithDetail(apperr.DetailDuplicate)
	}
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration not found")
	}
	return nil
}

// UpdatePayment stores the payment sub-state of a registration.
func (r *Repository) UpdatePayment(ctx context.Context, id uuid.UUID, p models.Payment) error {
	const q = `UPDATE registrations SET payment_status = $1, payment_method = $2, payment_recorded_at = $3,
		payment_recorded_by = $4, payment_reference = $5, updated_at = NOW() WHERE id = $6`
	tag, err := r.pool.Exec(ctx, q, p.Status, p.Method, p.RecordedAt, p.RecordedBy, p.Reference, id)
	if err != nil {
		return fmt.Errorf("update registration payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration not found")
	}
	return nil
}

// UpdateAttendance stores the attendance document; nil clears the column.
func (r *Repository) UpdateAttendance(ctx context.Context, id uuid.UUID, payload []byte) error {
	var value *string
	if payload != nil {
		s := string(payload)
		value = &s
	}
	const q = `UPDATE registrations SET attendance = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.pool.Exec(ctx, q, value, id)
	if err != nil {
		return fmt.Errorf("update registration attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration not found")
	}
	return nil
}

// Delete removes a registration.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("registration not found")
	}
	return nil
}
