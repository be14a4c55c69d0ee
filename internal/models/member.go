package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a member's role in the club.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCoach    Role = "coach"
	RoleMember   Role = "member"
	RoleGuardian Role = "guardian"
	RoleParent   Role = "parent"
)

// IsGuardian reports whether the role registers on behalf of others rather than participating.
func (r Role) IsGuardian() bool {
	switch Role(strings.ToLower(string(r))) {
	case RoleGuardian, RoleParent:
		return true
	}
	return false
}

// Member is a person who can be enrolled in events.
type Member struct {
	ID         uuid.UUID  `json:"id"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	GuardianID *uuid.UUID `json:"guardian_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FullName is the display name of the member.
func (m *Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// AgeAt returns the age in whole years at ref, or false if the birth date is unknown.
// The birth date is a calendar date and is compared as stored; ref is read in its own zone.
func (m *Member) AgeAt(ref time.Time) (int, bool) {
	if m.BirthDate == nil {
		return 0, false
	}
	by, bm, bd := m.BirthDate.Date()
	age := ref.Year() - by
	if ref.Month() < bm || (ref.Month() == bm && ref.Day() < bd) {
		age--
	}
	return age, true
}
