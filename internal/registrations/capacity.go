package registrations

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/pkg/apperr"
)

// CapacityState is a read projection of an event's seats. Remaining is nil for unlimited events.
type CapacityState struct {
	CapacityTotal     int  `json:"capacity_total"`
	WaitlistTotal     int  `json:"waitlist_total"`
	ActiveCount       int  `json:"active_count"`
	WaitlistCount     int  `json:"waitlist_count"`
	Remaining         *int `json:"remaining"`
	WaitlistRemaining int  `json:"waitlist_remaining"`
	WaitlistEnabled   bool `json:"waitlist_enabled"`
}

// admit picks the status of a new registration given the current counts.
func admit(ev *models.Event, counts models.StatusCounts) (models.RegistrationStatus, error) {
	if ev.CapacityTotal == 0 || counts.Active() < ev.CapacityTotal {
		if ev.RequiresValidation {
			return models.StatusPending, nil
		}
		return models.StatusConfirmed, nil
	}
	if ev.CapacityWaitlist <= 0 {
		return "", apperr.Conflict("event is full").WithDetail(apperr.DetailEventFull)
	}
	if counts.Waitlisted < ev.CapacityWaitlist {
		return models.StatusWaitlisted, nil
	}
	return "", apperr.Conflict("event is full and the waitlist is closed").WithDetail(apperr.DetailWaitlistClosed)
}

// promote moves the oldest waitlisted registration to pending when a seat is free.
// Caller holds the event lock.
func (s *Service) promote(ctx context.Context, ev *models.Event) (*models.Registration, error) {
	counts, err := s.store.CountByStatus(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	if ev.CapacityTotal > 0 && counts.Active() >= ev.CapacityTotal {
		return nil, nil
	}
	next, err := s.store.OldestWaitlisted(ctx, ev.ID)
	if err != nil || next == nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(ctx, next.ID, models.StatusPending); err != nil {
		return nil, err
	}
	next.Status = models.StatusPending
	s.metrics.promoted()
	s.logger.Info("waitlist promotion",
		zap.String("event_id", ev.ID.String()),
		zap.String("registration_id", next.ID.String()))
	s.notify(ctx, models.TemplateWaitlistPromoted, ev, next, map[string]string{"status": string(next.Status)})
	return next, nil
}

// syncThreshold keeps the capacity_notified latch in step with remaining seats.
// Only callers passing alert may set the latch, and setting it sends the alert;
// other callers can only re-arm it.
func (s *Service) syncThreshold(ctx context.Context, ev *models.Event, active int, alert bool) {
	if ev.CapacityTotal <= 0 || ev.CapacityNotifyThreshold <= 0 {
		return
	}
	remaining := ev.CapacityTotal - active
	if remaining < 0 {
		remaining = 0
	}

	var flag bool
	switch {
	case remaining <= ev.CapacityNotifyThreshold && !ev.CapacityNotified && alert:
		flag = true
	case remaining > ev.CapacityNotifyThreshold && ev.CapacityNotified:
		flag = false
	default:
		return
	}

	if flag {
		s.metrics.alerted()
		s.notify(ctx, models.TemplateCapacityThreshold, ev, nil, map[string]string{
			"remaining": strconv.Itoa(remaining),
			"capacity":  strconv.Itoa(ev.CapacityTotal),
		})
	}
	if err := s.events.Update(ctx, ev.ID, models.EventPatch{CapacityNotified: &flag}); err != nil {
		s.logger.Warn("capacity latch update failed", zap.String("event_id", ev.ID.String()), zap.Error(err))
		return
	}
	ev.CapacityNotified = flag
	s.logger.Debug("capacity latch updated", zap.String("event_id", ev.ID.String()), zap.Bool("notified", flag))
}

// GetCapacityState recomputes the seat projection of an event.
func (s *Service) GetCapacityState(ctx context.Context, eventID uuid.UUID) (CapacityState, error) {
	ev, err := s.findEvent(ctx, eventID)
	if err != nil {
		return CapacityState{}, err
	}
	counts, err := s.store.CountByStatus(ctx, eventID)
	if err != nil {
		return CapacityState{}, apperr.Persistence("count registrations", err)
	}
	st := CapacityState{
		CapacityTotal:   ev.CapacityTotal,
		WaitlistTotal:   ev.CapacityWaitlist,
		ActiveCount:     counts.Active(),
		WaitlistCount:   counts.Waitlisted,
		WaitlistEnabled: ev.CapacityWaitlist > 0,
	}
	if ev.CapacityTotal > 0 {
		remaining := max(0, ev.CapacityTotal-st.ActiveCount)
		st.Remaining = &remaining
	}
	if st.WaitlistEnabled {
		st.WaitlistRemaining = max(0, ev.CapacityWaitlist-counts.Waitlisted)
	}
	return st, nil
}
