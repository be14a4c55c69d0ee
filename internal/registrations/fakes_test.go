package registrations

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/internal/notifications"
	"github.com/aura-events/enrollment/internal/occurrence"
)

var baseNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// tickingClock advances one second on every reading so creation order is observable.
type tickingClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *tickingClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// memStore is an in-memory Store that also satisfies attendance.Registrations.
type memStore struct {
	mu          sync.Mutex
	regs        map[uuid.UUID]*models.Registration
	failUpdates error
}

func newMemStore() *memStore {
	return &memStore{regs: make(map[uuid.UUID]*models.Registration)}
}

func (m *memStore) put(reg models.Registration) *models.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	m.regs[reg.ID] = &reg
	cp := reg
	return &cp
}

func (m *memStore) sorted(match func(*models.Registration) bool) []*models.Registration {
	var out []*models.Registration
	for _, r := range m.regs {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func copyOf(r *models.Registration) *models.Registration {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func (m *memStore) Create(_ context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.EventID == reg.EventID && r.MemberID == reg.MemberID && r.Status != models.StatusCancelled {
			return errors.New("unique violation")
		}
	}
	m.regs[reg.ID] = copyOf(reg)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyOf(m.regs[id]), nil
}

func (m *memStore) FindActive(_ context.Context, eventID, memberID uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.sorted(func(r *models.Registration) bool {
		return r.EventID == eventID && r.MemberID == memberID && r.Status != models.StatusCancelled
	})
	if len(list) == 0 {
		return nil, nil
	}
	return copyOf(list[len(list)-1]), nil
}

func (m *memStore) LatestForMember(_ context.Context, eventID, memberID uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.sorted(func(r *models.Registration) bool { return r.EventID == eventID && r.MemberID == memberID })
	if len(list) == 0 {
		return nil, nil
	}
	return copyOf(list[len(list)-1]), nil
}

func (m *memStore) ListByEvent(_ context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Registration
	for _, r := range m.sorted(func(r *models.Registration) bool { return r.EventID == eventID }) {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) CountByStatus(_ context.Context, eventID uuid.UUID) (models.StatusCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c models.StatusCounts
	for _, r := range m.regs {
		if r.EventID != eventID {
			continue
		}
		switch r.Status {
		case models.StatusPending:
			c.Pending++
		case models.StatusConfirmed:
			c.Confirmed++
		case models.StatusWaitlisted:
			c.Waitlisted++
		case models.StatusCancelled:
			c.Cancelled++
		}
	}
	return c, nil
}

func (m *memStore) OldestWaitlisted(_ context.Context, eventID uuid.UUID) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.sorted(func(r *models.Registration) bool {
		return r.EventID == eventID && r.Status == models.StatusWaitlisted
	})
	if len(list) == 0 {
		return nil, nil
	}
	return copyOf(list[0]), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.RegistrationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates != nil {
		return m.failUpdates
	}
	r, ok := m.regs[id]
	if !ok {
		return errors.New("no rows")
	}
	r.Status = status
	return nil
}

func (m *memStore) UpdatePayment(_ context.Context, id uuid.UUID, p models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return errors.New("no rows")
	}
	r.Payment = p
	return nil
}

func (m *memStore) UpdateAttendance(_ context.Context, id uuid.UUID, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return errors.New("no rows")
	}
	r.Attendance = payload
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regs, id)
	return nil
}

func (m *memStore) status(id uuid.UUID) models.RegistrationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[id].Status
}

type memEvents struct {
	mu      sync.Mutex
	events  map[uuid.UUID]*models.Event
	updates int
}

func newMemEvents() *memEvents {
	return &memEvents{events: make(map[uuid.UUID]*models.Event)}
}

func (m *memEvents) add(ev models.Event) *models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Title == "" {
		ev.Title = "Stage"
	}
	m.events[ev.ID] = &ev
	cp := ev
	return &cp
}

func (m *memEvents) Find(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (m *memEvents) Update(_ context.Context, id uuid.UUID, patch models.EventPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return errors.New("no rows")
	}
	if patch.CapacityNotified != nil {
		ev.CapacityNotified = *patch.CapacityNotified
	}
	m.updates++
	return nil
}

func (m *memEvents) notified(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id].CapacityNotified
}

type memMembers struct {
	mu      sync.Mutex
	members map[uuid.UUID]*models.Member
}

func newMemMembers() *memMembers {
	return &memMembers{members: make(map[uuid.UUID]*models.Member)}
}

func (m *memMembers) add(member models.Member) *models.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	if member.Role == "" {
		member.Role = models.RoleMember
	}
	m.members[member.ID] = &member
	cp := member
	return &cp
}

func (m *memMembers) GetByID(_ context.Context, id uuid.UUID) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return nil, nil
	}
	cp := *member
	return &cp, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n notifications.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Template)
	}
	return out
}

func (r *recordingNotifier) count(template string) int {
	n := 0
	for _, t := range r.templates() {
		if t == template {
			n++
		}
	}
	return n
}

type staticExpander struct {
	occs []models.Occurrence
	err  error
	last models.OccurrenceQuery
}

func (s *staticExpander) Occurrences(_ context.Context, _ *models.Event, q models.OccurrenceQuery) ([]models.Occurrence, error) {
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	return s.occs, nil
}

type fixture struct {
	svc      *Service
	store    *memStore
	events   *memEvents
	members  *memMembers
	notifier *recordingNotifier
	expander *staticExpander
	codec    *occurrence.Codec
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	clock := &tickingClock{cur: baseNow}
	f := &fixture{
		store:    newMemStore(),
		events:   newMemEvents(),
		members:  newMemMembers(),
		notifier: &recordingNotifier{},
		expander: &staticExpander{},
		codec:    occurrence.NewCodec(time.UTC).WithClock(clock.now),
	}
	deps := Deps{
		Store:    f.store,
		Events:   f.events,
		Members:  f.members,
		Expander: f.expander,
		Notifier: f.notifier,
		Codec:    f.codec,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	f.svc = NewService(deps, Options{}, nil)
	return f
}

func (f *fixture) event(ev models.Event) *models.Event {
	if ev.DateDebut.IsZero() {
		ev.DateDebut = baseNow.AddDate(0, 1, 0)
	}
	return f.events.add(ev)
}

func (f *fixture) member() *models.Member {
	return f.members.add(models.Member{FirstName: "Ada", LastName: "Lovelace"})
}
