package attendance

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-events/enrollment/internal/models"
)

// memo caches registration lookups for the duration of one store operation.
// A fresh memo is created by every public Store method; it is never shared between operations.
type memo struct {
	regs   Registrations
	byID   map[uuid.UUID]*models.Registration
	byPair map[string]*models.Registration
}

func newMemo(regs Registrations) *memo {
	return &memo{
		regs:   regs,
		byID:   make(map[uuid.UUID]*models.Registration),
		byPair: make(map[string]*models.Registration),
	}
}

func pairKey(eventID, memberID uuid.UUID) string {
	return eventID.String() + ":" + memberID.String()
}

// byMember returns the most recent registration of memberID for eventID, or nil.
func (m *memo) byMember(ctx context.Context, eventID, memberID uuid.UUID) (*models.Registration, error) {
	key := pairKey(eventID, memberID)
	if reg, ok := m.byPair[key]; ok {
		return reg, nil
	}
	reg, err := m.regs.LatestForMember(ctx, eventID, memberID)
	if err != nil {
		return nil, err
	}
	m.byPair[key] = reg
	if reg != nil {
		m.byID[reg.ID] = reg
	}
	return reg, nil
}

// get returns the registration with id, or nil.
func (m *memo) get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	if reg, ok := m.byID[id]; ok {
		return reg, nil
	}
	reg, err := m.regs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		m.byID[reg.ID] = reg
	}
	return reg, nil
}

// remember overwrites the cached copies of reg, used after every document write.
func (m *memo) remember(reg *models.Registration) {
	m.byID[reg.ID] = reg
	key := pairKey(reg.EventID, reg.MemberID)
	if cur, ok := m.byPair[key]; ok && cur != nil && cur.ID == reg.ID {
		m.byPair[key] = reg
	}
}
