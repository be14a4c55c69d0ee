package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a scheduled activity members enroll in. Capacity fields use 0 for "unlimited"/"disabled".
type Event struct {
	ID                        uuid.UUID  `json:"id"`
	Title                     string     `json:"title"`
	DateDebut                 time.Time  `json:"date_debut"`
	DateFin                   *time.Time `json:"date_fin,omitempty"`
	DateFinInscription        *time.Time `json:"date_fin_inscription,omitempty"`
	CapacityTotal             int        `json:"capacity_total"`
	CapacityWaitlist          int        `json:"capacity_waitlist"`
	CapacityNotifyThreshold   int        `json:"capacity_notify_threshold"`
	CapacityNotified          bool       `json:"capacity_notified"`
	RequiresValidation        bool       `json:"requires_validation"`
	AllowGuardianRegistration bool       `json:"allow_guardian_registration"`
	AgeMin                    int        `json:"age_min"`
	AgeMax                    int        `json:"age_max"`
	CreatedAt                 time.Time  `json:"created_at"`
	UpdatedAt                 time.Time  `json:"updated_at"`
}

// RegistrationDeadline is the custom deadline when set, else the event start.
func (e *Event) RegistrationDeadline() time.Time {
	if e.DateFinInscription != nil {
		return *e.DateFinInscription
	}
	return e.DateDebut
}

// EventPatch is a partial update of an event. Nil fields are left untouched.
type EventPatch struct {
	CapacityNotified *bool
}

// Occurrence is one concrete scheduled instance of an event.
type Occurrence struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
	Label string     `json:"label,omitempty"`
}

// OccurrenceQuery bounds an occurrence expansion.
type OccurrenceQuery struct {
	Max         int
	IncludePast bool
}
