package registrations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/enrollment/internal/attendance"
	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/pkg/apperr"
	"github.com/aura-events/enrollment/pkg/lock"
)

const recordedAtLayout = "2006-01-02 15:04"

var methodLabels = map[string]string{
	models.PaymentMethodCash:           "Cash",
	models.PaymentMethodStripeCheckout: "Card (Stripe)",
}

// ExternalPayment is a payment confirmed outside the engine, e.g. by a checkout webhook.
type ExternalPayment struct {
	Method     string
	RecordedAt *time.Time
	RecordedBy *uuid.UUID
	Reference  *string
	// Force rewrites the payment even when it is already recorded with the same method.
	Force bool
}

// OccurrenceRef is one occurrence listed in a summary.
type OccurrenceRef struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	End   string `json:"end,omitempty"`
}

// OccurrenceSummary describes which occurrences a registration covers.
type OccurrenceSummary struct {
	Mode      string          `json:"mode"`
	Count     int             `json:"count"`
	Covered   []OccurrenceRef `json:"covered"`
	Available []OccurrenceRef `json:"available"`
}

// PaymentSnapshot is the payment state of a registration as shown to staff.
type PaymentSnapshot struct {
	RegistrationID  uuid.UUID         `json:"registration_id"`
	Status          string            `json:"status"`
	StatusLabel     string            `json:"status_label"`
	Method          string            `json:"method,omitempty"`
	MethodLabel     string            `json:"method_label,omitempty"`
	RecordedAt      *time.Time        `json:"recorded_at,omitempty"`
	RecordedAtLabel string            `json:"recorded_at_label,omitempty"`
	RecordedBy      *uuid.UUID        `json:"recorded_by,omitempty"`
	RecordedByName  string            `json:"recorded_by_name,omitempty"`
	Reference       string            `json:"reference,omitempty"`
	Occurrences     OccurrenceSummary `json:"occurrences"`
}

// ToggleCashPayment flips a registration between unpaid and paid in cash.
func (s *Service) ToggleCashPayment(ctx context.Context, registrationID, actorID uuid.UUID) (*PaymentSnapshot, error) {
	var reg *models.Registration
	err := s.locker.WithLock(ctx, lock.RegistrationKey(registrationID), func(ctx context.Context) error {
		var err error
		reg, err = s.getRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		var p models.Payment
		if reg.Payment.Paid() && reg.Payment.MethodKey() == models.PaymentMethodCash {
			p = models.Payment{Status: models.PaymentStatusUnpaid, Reference: reg.Payment.Reference}
		} else {
			method := models.PaymentMethodCash
			now := s.codec.Now()
			actor := actorID
			p = models.Payment{
				Status:     models.PaymentStatusPaid,
				Method:     &method,
				RecordedAt: &now,
				RecordedBy: &actor,
				Reference:  reg.Payment.Reference,
			}
		}
		if err := s.store.UpdatePayment(ctx, reg.ID, p); err != nil {
			return apperr.Persistence("update payment", err)
		}
		reg.Payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("cash payment toggled",
		zap.String("registration_id", registrationID.String()),
		zap.String("payment_status", reg.Payment.Status))
	return s.snapshot(ctx, reg), nil
}

// ApplyExternalPayment marks a registration as paid through in.Method.
func (s *Service) ApplyExternalPayment(ctx context.Context, registrationID uuid.UUID, in ExternalPayment) (*PaymentSnapshot, error) {
	method := strings.TrimSpace(in.Method)
	if method == "" {
		return nil, apperr.InvalidArgument("payment method is required")
	}
	var (
		reg     *models.Registration
		changed bool
	)
	err := s.locker.WithLock(ctx, lock.RegistrationKey(registrationID), func(ctx context.Context) error {
		var err error
		reg, err = s.getRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg.Payment.Paid() && reg.Payment.MethodKey() == method && !in.Force {
			return nil
		}
		recordedAt := s.codec.Now()
		if in.RecordedAt != nil {
			recordedAt = *in.RecordedAt
		}
		p := models.Payment{
			Status:     models.PaymentStatusPaid,
			Method:     &method,
			RecordedAt: &recordedAt,
			RecordedBy: in.RecordedBy,
			Reference:  in.Reference,
		}
		if p.Reference == nil {
			p.Reference = reg.Payment.Reference
		}
		if err := s.store.UpdatePayment(ctx, reg.ID, p); err != nil {
			return apperr.Persistence("update payment", err)
		}
		reg.Payment = p
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("external payment applied",
			zap.String("registration_id", registrationID.String()),
			zap.String("method", method))
		s.paymentConfirmed(ctx, reg)
	}
	return s.snapshot(ctx, reg), nil
}

// GetPaymentSnapshot returns the current payment snapshot of a registration.
func (s *Service) GetPaymentSnapshot(ctx context.Context, registrationID uuid.UUID) (*PaymentSnapshot, error) {
	reg, err := s.getRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, reg), nil
}

func (s *Service) paymentConfirmed(ctx context.Context, reg *models.Registration) {
	ev, err := s.events.Find(ctx, reg.EventID)
	if err != nil || ev == nil {
		s.logger.Warn("payment notification skipped", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return
	}
	s.notify(ctx, models.TemplatePaymentConfirmed, ev, reg, map[string]string{
		"payment_method": methodLabel(reg.Payment.MethodKey()),
	})
}

func (s *Service) snapshot(ctx context.Context, reg *models.Registration) *PaymentSnapshot {
	p := reg.Payment
	snap := &PaymentSnapshot{
		RegistrationID: reg.ID,
		Status:         p.Status,
		StatusLabel:    "Unpaid",
		Method:         p.MethodKey(),
		MethodLabel:    methodLabel(p.MethodKey()),
		RecordedAt:     p.RecordedAt,
		RecordedBy:     p.RecordedBy,
	}
	if snap.Status == "" {
		snap.Status = models.PaymentStatusUnpaid
	}
	if p.Paid() {
		snap.StatusLabel = "Paid"
	}
	if p.Reference != nil {
		snap.Reference = *p.Reference
	}
	if p.RecordedAt != nil {
		snap.RecordedAtLabel = p.RecordedAt.In(s.codec.Location()).Format(recordedAtLayout)
	}
	if p.RecordedBy != nil {
		actor, err := s.members.GetByID(ctx, *p.RecordedBy)
		if err != nil {
			s.logger.Debug("payment actor lookup failed", zap.String("member_id", p.RecordedBy.String()), zap.Error(err))
		} else if actor != nil {
			snap.RecordedByName = actor.FullName()
		}
	}

	summary, err := s.OccurrenceSummary(ctx, reg)
	if err != nil {
		s.logger.Warn("occurrence summary failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		summary = OccurrenceSummary{Mode: attendance.ModeAll, Covered: []OccurrenceRef{}, Available: []OccurrenceRef{}}
	}
	snap.Occurrences = summary
	return snap
}

// OccurrenceSummary lists the occurrences of reg's event and those its assignment scope covers.
func (s *Service) OccurrenceSummary(ctx context.Context, reg *models.Registration) (OccurrenceSummary, error) {
	scope := attendance.DefaultScope()
	if s.assignments != nil {
		scope = s.assignments.RegistrationAssignments(reg)
	}
	summary := OccurrenceSummary{Mode: scope.Mode, Covered: []OccurrenceRef{}, Available: []OccurrenceRef{}}

	ev, err := s.findEvent(ctx, reg.EventID)
	if err != nil {
		return summary, err
	}
	occs, err := s.availableOccurrences(ctx, ev)
	if err != nil {
		return summary, err
	}

	byKey := make(map[string]OccurrenceRef, len(occs))
	for _, o := range occs {
		ref := OccurrenceRef{Key: s.codec.Normalize(o.Start), Label: o.Label}
		if ref.Key == "" {
			continue
		}
		if o.End != nil {
			ref.End = s.codec.Normalize(*o.End)
		}
		if _, dup := byKey[ref.Key]; dup {
			continue
		}
		byKey[ref.Key] = ref
		summary.Available = append(summary.Available, ref)
	}

	if scope.Custom() {
		for _, key := range scope.Occurrences {
			ref, ok := byKey[key]
			if !ok {
				ref = OccurrenceRef{Key: key}
			}
			summary.Covered = append(summary.Covered, ref)
		}
	} else {
		summary.Covered = append(summary.Covered, summary.Available...)
	}
	summary.Count = len(summary.Covered)
	return summary, nil
}

func (s *Service) availableOccurrences(ctx context.Context, ev *models.Event) ([]models.Occurrence, error) {
	if s.expander != nil {
		return s.expander.Occurrences(ctx, ev, models.OccurrenceQuery{Max: s.opts.SummaryMax, IncludePast: true})
	}
	if ev.DateDebut.IsZero() {
		return nil, nil
	}
	return []models.Occurrence{{Start: ev.DateDebut, End: ev.DateFin}}, nil
}

func methodLabel(key string) string {
	if key == "" {
		return ""
	}
	if label, ok := methodLabels[key]; ok {
		return label
	}
	return strings.ReplaceAll(key, "_", " ")
}
