package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	StatusPending    RegistrationStatus = "pending"
	StatusConfirmed  RegistrationStatus = "confirmed"
	StatusWaitlisted RegistrationStatus = "waitlisted"
	StatusCancelled  RegistrationStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusWaitlisted, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether s holds a seat (counts against capacity_total).
func (s RegistrationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// PaymentStatus for registrations.
const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// Payment methods known to the engine; any other key is accepted as-is.
const (
	PaymentMethodCash           = "cash"
	PaymentMethodStripeCheckout = "stripe_checkout"
)

// Payment is the payment sub-state of a registration.
type Payment struct {
	Status     string     `json:"payment_status"`
	Method     *string    `json:"payment_method,omitempty"`
	RecordedAt *time.Time `json:"payment_recorded_at,omitempty"`
	RecordedBy *uuid.UUID `json:"payment_recorded_by,omitempty"`
	Reference  *string    `json:"payment_reference,omitempty"`
}

// Paid reports whether the registration has been paid.
func (p Payment) Paid() bool { return p.Status == PaymentStatusPaid }

// MethodKey returns the payment method or "".
func (p Payment) MethodKey() string {
	if p.Method == nil {
		return ""
	}
	return *p.Method
}

// Registration is one enrollment of a member in an event.
type Registration struct {
	ID         uuid.UUID          `json:"id"`
	EventID    uuid.UUID          `json:"event_id"`
	MemberID   uuid.UUID          `json:"member_id"`
	GuardianID *uuid.UUID         `json:"guardian_id,omitempty"`
	Status     RegistrationStatus `json:"status"`
	Notes      string             `json:"notes"`
	Payment    Payment            `json:"payment"`
	// Attendance is the encoded attendance document; nil when never touched.
	Attendance []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusCounts tallies the registrations of one event by status.
type StatusCounts struct {
	Pending    int
	Confirmed  int
	Waitlisted int
	Cancelled  int
}

// Active is the number of seats taken.
func (c StatusCounts) Active() int { return c.Pending + c.Confirmed }
