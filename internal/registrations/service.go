// Package registrations implements the registration lifecycle: admission control, waitlist
// promotion, the capacity threshold latch and payment state.
package registrations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/enrollment/internal/attendance"
	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/internal/notifications"
	"github.com/aura-events/enrollment/internal/occurrence"
	"github.com/aura-events/enrollment/pkg/apperr"
	"github.com/aura-events/enrollment/pkg/lock"
)

// Store is the registration persistence used by the service. Lookups return (nil, nil) when nothing matches.
type Store interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	FindActive(ctx context.Context, eventID, memberID uuid.UUID) (*models.Registration, error)
	CountByStatus(ctx context.Context, eventID uuid.UUID) (models.StatusCounts, error)
	OldestWaitlisted(ctx context.Context, eventID uuid.UUID) (*models.Registration, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) error
	UpdatePayment(ctx context.Context, id uuid.UUID, p models.Payment) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventProvider reads events and writes the capacity latch.
type EventProvider interface {
	Find(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Update(ctx context.Context, id uuid.UUID, patch models.EventPatch) error
}

// MemberProvider reads members.
type MemberProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

// OccurrenceExpander lists the concrete occurrences of an event.
type OccurrenceExpander interface {
	Occurrences(ctx context.Context, ev *models.Event, q models.OccurrenceQuery) ([]models.Occurrence, error)
}

// Notifier dispatches templated notifications.
type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification) error
}

// Assignments reads the occurrence scope of a registration.
type Assignments interface {
	RegistrationAssignments(reg *models.Registration) attendance.Scope
}

// Deps are the collaborators of a Service. Expander, Notifier, Assignments, Locker and Metrics are optional.
type Deps struct {
	Store       Store
	Events      EventProvider
	Members     MemberProvider
	Expander    OccurrenceExpander
	Notifier    Notifier
	Assignments Assignments
	Codec       *occurrence.Codec
	Locker      lock.Locker
	Metrics     *Metrics
}

// Options tune occurrence look-ups.
type Options struct {
	// LookaheadCount bounds the future-occurrence check of late registrations.
	LookaheadCount int
	// SummaryMax bounds the occurrence list of payment snapshots.
	SummaryMax int
}

// CreateOptions are the optional inputs of Service.Create.
type CreateOptions struct {
	GuardianID            *uuid.UUID
	Notes                 string
	AllowLateRegistration bool
	SkipNotifications     bool
}

// Service runs the registration lifecycle.
type Service struct {
	store       Store
	events      EventProvider
	members     MemberProvider
	expander    OccurrenceExpander
	notifier    Notifier
	assignments Assignments
	codec       *occurrence.Codec
	locker      lock.Locker
	metrics     *Metrics
	opts        Options
	logger      *zap.Logger
}

// NewService creates a registration service.
func NewService(deps Deps, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Codec == nil {
		deps.Codec = occurrence.NewCodec(time.UTC)
	}
	if opts.LookaheadCount <= 0 {
		opts.LookaheadCount = 30
	}
	if opts.SummaryMax <= 0 {
		opts.SummaryMax = 200
	}
	return &Service{
		store:       deps.Store,
		events:      deps.Events,
		members:     deps.Members,
		expander:    deps.Expander,
		notifier:    deps.Notifier,
		assignments: deps.Assignments,
		codec:       deps.Codec,
		locker:      deps.Locker,
		metrics:     deps.Metrics,
		opts:        opts,
		logger:      logger,
	}
}

// Create validates and admits memberID into eventID.
func (s *Service) Create(ctx context.Context, eventID, memberID uuid.UUID, opts CreateOptions) (*models.Registration, error) {
	var (
		created *models.Registration
		ev      *models.Event
		member  *models.Member
	)
	err := s.locker.WithLock(ctx, lock.EventKey(eventID), func(ctx context.Context) error {
		var err error
		ev, err = s.findEvent(ctx, eventID)
		if err != nil {
			return err
		}
		member, err = s.members.GetByID(ctx, memberID)
		if err != nil {
			return apperr.Persistence("load member", err)
		}
		if member == nil {
			return apperr.NotFound("member not found")
		}

		dup, err := s.store.FindActive(ctx, eventID, memberID)
		if err != nil {
			return apperr.Persistence("load registration", err)
		}
		if dup != nil {
			return apperr.Conflict("member is already registered for this event").WithDetail(apperr.DetailDuplicate)
		}

		now := s.codec.Now()
		if err := s.checkTiming(ctx, ev, now, opts.AllowLateRegistration); err != nil {
			return err
		}
		if err := checkEligibility(ev, member, now); err != nil {
			return err
		}

		counts, err := s.store.CountByStatus(ctx, eventID)
		if err != nil {
			return apperr.Persistence("count registrations", err)
		}
		status, err := admit(ev, counts)
		if err != nil {
			return err
		}

		reg := &models.Registration{
			ID:         uuid.New(),
			EventID:    eventID,
			MemberID:   memberID,
			GuardianID: s.resolveGuardian(ctx, member, opts.GuardianID),
			Status:     status,
			Notes:      opts.Notes,
			Payment:    models.Payment{Status: models.PaymentStatusUnpaid},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.Create(ctx, reg); err != nil {
			return apperr.Persistence("create registration", err)
		}
		created = reg

		if status.Active() {
			counts.Pending++
		}
		s.syncThreshold(ctx, ev, counts.Active(), status != models.StatusWaitlisted)
		return nil
	})
	if err != nil {
		s.metrics.rejected(err)
		return nil, err
	}
	s.metrics.admitted(created.Status)
	s.logger.Info("registration created",
		zap.String("event_id", eventID.String()),
		zap.String("registration_id", created.ID.String()),
		zap.String("status", string(created.Status)))

	if !opts.SkipNotifications {
		s.notify(ctx, creationTemplate(created.Status), ev, created, map[string]string{
			"member_name": member.FullName(),
			"status":      string(created.Status),
		})
	}
	return created, nil
}

// UpdateStatus moves a registration to status. Cancelling frees a seat for the waitlist.
func (s *Service) UpdateStatus(ctx context.Context, registrationID uuid.UUID, status models.RegistrationStatus) (*models.Registration, error) {
	if !status.Valid() {
		return nil, apperr.InvalidArgument("unknown registration status %q", status)
	}
	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status == status {
		return reg, nil
	}

	var updated *models.Registration
	err = s.locker.WithLock(ctx, lock.EventKey(reg.EventID), func(ctx context.Context) error {
		cur, err := s.getRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if cur.Status == status {
			updated = cur
			return nil
		}
		if cur.Status == models.StatusCancelled {
			dup, err := s.store.FindActive(ctx, cur.EventID, cur.MemberID)
			if err != nil {
				return apperr.Persistence("load registration", err)
			}
			if dup != nil && dup.ID != cur.ID {
				return apperr.Conflict("member is already registered for this event").WithDetail(apperr.DetailDuplicate)
			}
		}
		if err := s.store.UpdateStatus(ctx, cur.ID, status); err != nil {
			return apperr.Persistence("update registration status", err)
		}
		previous := cur.Status
		cur.Status = status
		cur.UpdatedAt = s.codec.Now()
		updated = cur
		s.logger.Info("registration status changed",
			zap.String("registration_id", cur.ID.String()),
			zap.String("from", string(previous)),
			zap.String("to", string(status)))

		s.afterSeatChange(ctx, cur.EventID, status == models.StatusCancelled)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a registration and lets the waitlist move up.
func (s *Service) Delete(ctx context.Context, registrationID uuid.UUID) error {
	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return err
	}
	return s.locker.WithLock(ctx, lock.EventKey(reg.EventID), func(ctx context.Context) error {
		if err := s.store.Delete(ctx, registrationID); err != nil {
			return apperr.Persistence("delete registration", err)
		}
		s.logger.Info("registration deleted", zap.String("registration_id", registrationID.String()))
		s.afterSeatChange(ctx, reg.EventID, true)
		return nil
	})
}

// afterSeatChange runs the best-effort follow-ups of a status change. Caller holds the event lock.
func (s *Service) afterSeatChange(ctx context.Context, eventID uuid.UUID, freed bool) {
	ev, err := s.events.Find(ctx, eventID)
	if err != nil || ev == nil {
		s.logger.Warn("event unavailable after status change", zap.String("event_id", eventID.String()), zap.Error(err))
		return
	}
	if freed {
		if _, err := s.promote(ctx, ev); err != nil {
			s.logger.Warn("waitlist promotion failed", zap.String("event_id", eventID.String()), zap.Error(err))
		}
	}
	counts, err := s.store.CountByStatus(ctx, eventID)
	if err != nil {
		s.logger.Warn("capacity resync failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return
	}
	s.syncThreshold(ctx, ev, counts.Active(), false)
}

func (s *Service) checkTiming(ctx context.Context, ev *models.Event, now time.Time, allowLate bool) error {
	if allowLate {
		return nil
	}
	if ev.DateFinInscription == nil && ev.DateDebut.IsZero() {
		return nil
	}
	if !now.After(ev.RegistrationDeadline()) {
		return nil
	}
	if ev.DateFinInscription != nil {
		return apperr.PolicyViolation("registration deadline has passed")
	}
	if s.hasFutureOccurrence(ctx, ev, now) {
		return nil
	}
	return apperr.PolicyViolation("event has already started")
}

func (s *Service) hasFutureOccurrence(ctx context.Context, ev *models.Event, now time.Time) bool {
	if s.expander == nil {
		return false
	}
	occs, err := s.expander.Occurrences(ctx, ev, models.OccurrenceQuery{Max: s.opts.LookaheadCount})
	if err != nil {
		s.logger.Warn("occurrence expansion failed", zap.String("event_id", ev.ID.String()), zap.Error(err))
		return false
	}
	for _, o := range occs {
		if o.Start.After(now) {
			return true
		}
	}
	return false
}

func checkEligibility(ev *models.Event, member *models.Member, now time.Time) error {
	if !ev.AllowGuardianRegistration && member.Role.IsGuardian() {
		return apperr.PolicyViolation("guardians cannot register for this event")
	}
	if ev.AgeMin <= 0 && ev.AgeMax <= 0 {
		return nil
	}
	ref := now
	if !ev.DateDebut.IsZero() {
		ref = ev.DateDebut.In(now.Location())
	}
	age, ok := member.AgeAt(ref)
	if !ok {
		return apperr.PolicyViolation("birth date is required for this event")
	}
	if ev.AgeMin > 0 && age < ev.AgeMin {
		return apperr.PolicyViolation("member must be at least %d years old", ev.AgeMin)
	}
	if ev.AgeMax > 0 && age > ev.AgeMax {
		return apperr.PolicyViolation("member must be at most %d years old", ev.AgeMax)
	}
	return nil
}

// resolveGuardian prefers an explicit guardian that exists, then the member's own guardian.
func (s *Service) resolveGuardian(ctx context.Context, member *models.Member, explicit *uuid.UUID) *uuid.UUID {
	if explicit != nil && *explicit != uuid.Nil {
		g, err := s.members.GetByID(ctx, *explicit)
		if err == nil && g != nil {
			id := g.ID
			return &id
		}
		s.logger.Debug("ignoring unknown guardian", zap.String("guardian_id", explicit.String()), zap.Error(err))
	}
	if member.GuardianID != nil {
		id := *member.GuardianID
		return &id
	}
	return nil
}

func (s *Service) findEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := s.events.Find(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("load event", err)
	}
	if ev == nil {
		return nil, apperr.NotFound("event not found")
	}
	return ev, nil
}

func (s *Service) getRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("load registration", err)
	}
	if reg == nil {
		return nil, apperr.NotFound("registration not found")
	}
	return reg, nil
}

func creationTemplate(status models.RegistrationStatus) string {
	switch status {
	case models.StatusWaitlisted:
		return models.TemplateRegistrationWaitlist
	case models.StatusPending:
		return models.TemplateRegistrationPending
	default:
		return models.TemplateRegistrationConfirmed
	}
}

// notify dispatches template about reg; failures are only logged.
func (s *Service) notify(ctx context.Context, template string, ev *models.Event, reg *models.Registration, extra map[string]string) {
	if s.notifier == nil {
		return
	}
	placeholders := map[string]string{"event_title": ev.Title}
	if !ev.DateDebut.IsZero() {
		placeholders["event_start"] = s.codec.Format(ev.DateDebut)
	}
	for k, v := range extra {
		placeholders[k] = v
	}
	n := notifications.Notification{Template: template, EventID: ev.ID, Placeholders: placeholders}
	if reg != nil {
		regID, memberID := reg.ID, reg.MemberID
		n.RegistrationID = &regID
		n.MemberID = &memberID
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("template", template),
			zap.String("event_id", ev.ID.String()),
			zap.Error(err))
	}
}
