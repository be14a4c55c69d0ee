// Package attendance stores per-occurrence attendance and the assignment scope of
// each registration inside one compact document per registration.
package attendance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/internal/occurrence"
	"github.com/aura-events/enrollment/pkg/apperr"
	"github.com/aura-events/enrollment/pkg/lock"
)

// Registrations is the registration persistence the store reads and writes documents through.
// Lookups return (nil, nil) when nothing matches.
type Registrations interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	// LatestForMember returns the most recently created registration of the pair, whatever its status.
	LatestForMember(ctx context.Context, eventID, memberID uuid.UUID) (*models.Registration, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error)
	// UpdateAttendance stores payload; nil stores SQL NULL.
	UpdateAttendance(ctx context.Context, id uuid.UUID, payload []byte) error
}

// RecordOptions are the optional inputs of Store.Record.
type RecordOptions struct {
	RegistrationID *uuid.UUID
	RecordedBy     *uuid.UUID
	Notes          string
	OccurrenceEnd  any
}

// BulkEntry is one member line of a roll call.
type BulkEntry struct {
	MemberID       uuid.UUID
	RegistrationID *uuid.UUID
	Status         string
	Notes          string
	OccurrenceEnd  any
}

// BulkResult counts what a roll call changed.
type BulkResult struct {
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

type outcome int

const (
	outcomeNoop outcome = iota
	outcomeWritten
	outcomeRemoved
)

// Store reads and writes attendance documents.
type Store struct {
	regs    Registrations
	codec   *occurrence.Codec
	locker  lock.Locker
	metrics *Metrics
	logger  *zap.Logger
}

// NewStore creates an attendance store. A nil locker falls back to an in-process one.
func NewStore(regs Registrations, codec *occurrence.Codec, locker lock.Locker, metrics *Metrics, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Store{regs: regs, codec: codec, locker: locker, metrics: metrics, logger: logger}
}

// Codec returns the occurrence codec used by the store.
func (s *Store) Codec() *occurrence.Codec { return s.codec }

func (s *Store) decode(reg *models.Registration) *Document {
	doc, err := Decode(s.codec, reg.Attendance)
	if err != nil {
		s.logger.Warn("unreadable attendance document", zap.String("registration_id", reg.ID.String()), zap.Error(err))
	}
	return doc
}

// GetRecord returns the attendance of memberID at occ, or nil.
func (s *Store) GetRecord(ctx context.Context, eventID, memberID uuid.UUID, occ any) (*Record, error) {
	key := s.codec.Normalize(occ)
	if key == "" {
		return nil, nil
	}
	reg, err := newMemo(s.regs).byMember(ctx, eventID, memberID)
	if err != nil {
		return nil, apperr.Persistence("load registration", err)
	}
	if reg == nil {
		return nil, nil
	}
	rec, ok := s.decode(reg).Occurrences[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// GetMap returns every stored record of an event keyed by occurrence then member.
func (s *Store) GetMap(ctx context.Context, eventID uuid.UUID) (map[string]map[uuid.UUID]Record, error) {
	regs, err := s.regs.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, apperr.Persistence("list registrations", err)
	}
	out := make(map[string]map[uuid.UUID]Record)
	for i := range regs {
		if len(regs[i].Attendance) == 0 {
			continue
		}
		for key, rec := range s.decode(&regs[i]).Occurrences {
			byMember := out[key]
			if byMember == nil {
				byMember = make(map[uuid.UUID]Record)
				out[key] = byMember
			}
			byMember[regs[i].MemberID] = rec
		}
	}
	return out, nil
}

// Record writes the attendance of memberID at occ. A status that normalizes to
// pending or nothing removes the record instead.
func (s *Store) Record(ctx context.Context, eventID, memberID uuid.UUID, occ any, status string, opts RecordOptions) error {
	key := s.codec.Normalize(occ)
	if key == "" {
		return apperr.InvalidArgument("invalid occurrence")
	}
	_, err := s.apply(ctx, newMemo(s.regs), eventID, memberID, key, status, opts)
	return err
}

// BulkRecord applies a roll call for one occurrence. Entries are applied in order and the
// first failure aborts the remaining ones.
func (s *Store) BulkRecord(ctx context.Context, eventID uuid.UUID, occ any, entries []BulkEntry, actorID *uuid.UUID) (BulkResult, error) {
	var res BulkResult
	key := s.codec.Normalize(occ)
	if key == "" {
		return res, apperr.InvalidArgument("invalid occurrence")
	}
	m := newMemo(s.regs)
	for _, e := range entries {
		out, err := s.apply(ctx, m, eventID, e.MemberID, key, e.Status, RecordOptions{
			RegistrationID: e.RegistrationID,
			RecordedBy:     actorID,
			Notes:          e.Notes,
			OccurrenceEnd:  e.OccurrenceEnd,
		})
		if err != nil {
			return res, fmt.Errorf("member %s: %w", e.MemberID, err)
		}
		switch out {
		case outcomeWritten:
			res.Updated++
		case outcomeRemoved:
			res.Removed++
		}
	}
	return res, nil
}

// Delete removes the attendance of memberID at occ. Missing data is not an error.
func (s *Store) Delete(ctx context.Context, eventID, memberID uuid.UUID, occ any) error {
	key := s.codec.Normalize(occ)
	if key == "" {
		return nil
	}
	m := newMemo(s.regs)
	reg, err := m.byMember(ctx, eventID, memberID)
	if err != nil {
		return apperr.Persistence("load registration", err)
	}
	if reg == nil {
		return nil
	}
	_, err = s.mutate(ctx, m, reg.ID, func(doc *Document) outcome {
		if _, ok := doc.Occurrences[key]; !ok {
			return outcomeNoop
		}
		delete(doc.Occurrences, key)
		return outcomeRemoved
	})
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	return err
}

// GetCounts tallies the statuses at occ. Active registrations covering occ without a record count as pending.
func (s *Store) GetCounts(ctx context.Context, eventID uuid.UUID, occ any) (map[occurrence.Status]int, error) {
	counts := map[occurrence.Status]int{
		occurrence.StatusPresent: 0,
		occurrence.StatusAbsent:  0,
		occurrence.StatusPending: 0,
	}
	key := s.codec.Normalize(occ)
	if key == "" {
		return counts, nil
	}
	regs, err := s.regs.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, apperr.Persistence("list registrations", err)
	}
	for i := range regs {
		doc := s.decode(&regs[i])
		if rec, ok := doc.Occurrences[key]; ok {
			counts[rec.Status]++
			continue
		}
		if regs[i].Status.Active() && s.CoversOccurrence(doc.Assignments, key) {
			counts[occurrence.StatusPending]++
		}
	}
	return counts, nil
}

// RegistrationAssignments decodes the assignment scope of reg.
func (s *Store) RegistrationAssignments(reg *models.Registration) Scope {
	if reg == nil {
		return DefaultScope()
	}
	return s.decode(reg).Assignments
}

// SetRegistrationAssignments normalizes and stores scope, returning what was stored.
func (s *Store) SetRegistrationAssignments(ctx context.Context, registrationID uuid.UUID, scope Scope) (Scope, error) {
	normalized := normalizeScope(s.codec, scope)
	_, err := s.mutate(ctx, newMemo(s.regs), registrationID, func(doc *Document) outcome {
		doc.Assignments = normalized
		return outcomeWritten
	})
	if err != nil {
		return Scope{}, err
	}
	return normalized, nil
}

// CoversOccurrence reports whether scope applies to occ. Non-custom scopes cover everything.
func (s *Store) CoversOccurrence(scope Scope, occ any) bool {
	if !scope.Custom() {
		return true
	}
	key := s.codec.Normalize(occ)
	if key == "" {
		return false
	}
	for _, o := range scope.Occurrences {
		if o == key {
			return true
		}
	}
	return false
}

func (s *Store) apply(ctx context.Context, m *memo, eventID, memberID uuid.UUID, key, status string, opts RecordOptions) (outcome, error) {
	var (
		reg *models.Registration
		err error
	)
	if opts.RegistrationID != nil {
		reg, err = m.get(ctx, *opts.RegistrationID)
	} else {
		reg, err = m.byMember(ctx, eventID, memberID)
	}
	if err != nil {
		return outcomeNoop, apperr.Persistence("load registration", err)
	}
	if reg == nil {
		return outcomeNoop, apperr.NotFound("no registration for this member")
	}
	if reg.EventID != eventID || reg.MemberID != memberID {
		return outcomeNoop, apperr.InvalidArgument("registration does not belong to this member and event")
	}

	st := occurrence.NormalizeStatus(status)
	if !st.Stored() {
		out, err := s.mutate(ctx, m, reg.ID, func(doc *Document) outcome {
			if _, ok := doc.Occurrences[key]; !ok {
				return outcomeNoop
			}
			delete(doc.Occurrences, key)
			return outcomeRemoved
		})
		return out, err
	}

	rec := Record{
		Status:        st,
		RecordedAt:    s.codec.Format(s.codec.Now()),
		RecordedBy:    opts.RecordedBy,
		Notes:         opts.Notes,
		OccurrenceEnd: s.codec.Normalize(opts.OccurrenceEnd),
	}
	return s.mutate(ctx, m, reg.ID, func(doc *Document) outcome {
		doc.Occurrences[key] = rec
		return outcomeWritten
	})
}

// mutate runs a read-modify-write of one registration's document under its attendance lock.
// The registration is re-read inside the lock so concurrent writers never lose each other's entries.
func (s *Store) mutate(ctx context.Context, m *memo, registrationID uuid.UUID, fn func(doc *Document) outcome) (outcome, error) {
	var out outcome
	err := s.locker.WithLock(ctx, lock.AttendanceKey(registrationID), func(ctx context.Context) error {
		reg, err := s.regs.GetByID(ctx, registrationID)
		if err != nil {
			return apperr.Persistence("load registration", err)
		}
		if reg == nil {
			return apperr.NotFound("registration not found")
		}
		doc := s.decode(reg)
		out = fn(doc)
		if out == outcomeNoop {
			m.remember(reg)
			return nil
		}
		payload, err := Encode(doc)
		if err != nil {
			return apperr.Persistence("encode attendance", err)
		}
		if err := s.regs.UpdateAttendance(ctx, reg.ID, payload); err != nil {
			return apperr.Persistence("save attendance", err)
		}
		updated := *reg
		updated.Attendance = payload
		m.remember(&updated)
		return nil
	})
	if err != nil {
		return outcomeNoop, err
	}
	s.metrics.observe(out)
	return out, nil
}
