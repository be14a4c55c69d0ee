package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemberAgeAt(t *testing.T) {
	birth := time.Date(2010, time.June, 15, 0, 0, 0, 0, time.UTC)
	m := &Member{BirthDate: &birth}

	age, ok := m.AgeAt(time.Date(2024, time.June, 14, 12, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, 13, age)

	age, _ = m.AgeAt(time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 14, age)

	montreal := time.FixedZone("UTC-4", -4*3600)
	age, _ = m.AgeAt(time.Date(2024, time.June, 15, 8, 0, 0, 0, montreal))
	assert.Equal(t, 14, age, "birthday holds in a zone west of UTC")

	age, _ = m.AgeAt(time.Date(2024, time.June, 14, 23, 0, 0, 0, montreal))
	assert.Equal(t, 13, age)

	_, ok = (&Member{}).AgeAt(time.Now())
	assert.False(t, ok)
}

func TestRoleIsGuardian(t *testing.T) {
	assert.True(t, RoleGuardian.IsGuardian())
	assert.True(t, Role("Parent").IsGuardian())
	assert.False(t, RoleMember.IsGuardian())
	assert.False(t, RoleCoach.IsGuardian())
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusPending.Active())
	assert.True(t, StatusConfirmed.Active())
	assert.False(t, StatusWaitlisted.Active())
	assert.False(t, RegistrationStatus("archived").Valid())
	assert.Equal(t, 3, StatusCounts{Pending: 1, Confirmed: 2, Waitlisted: 4}.Active())
}

func TestRegistrationDeadline(t *testing.T) {
	start := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	e := &Event{DateDebut: start}
	assert.Equal(t, start, e.RegistrationDeadline())

	custom := start.Add(72 * time.Hour)
	e.DateFinInscription = &custom
	assert.Equal(t, custom, e.RegistrationDeadline())
}
