package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification templates dispatched by the registration engine.
const (
	TemplateRegistrationConfirmed = "registration_confirmed"
	TemplateRegistrationPending   = "registration_pending"
	TemplateRegistrationWaitlist  = "registration_waitlisted"
	TemplateWaitlistPromoted      = "waitlist_promoted"
	TemplateCapacityThreshold     = "capacity_threshold_reached"
	TemplatePaymentConfirmed      = "payment_confirmed"
)

// NotificationLogStatus for delivery.
const (
	NotificationLogStatusSent   = "sent"
	NotificationLogStatusFailed = "failed"
)

// NotificationLog records a processed notification job.
type NotificationLog struct {
	ID             uuid.UUID  `json:"id"`
	JobID          string     `json:"job_id"`
	Template       string     `json:"template"`
	EventID        *uuid.UUID `json:"event_id,omitempty"`
	RegistrationID *uuid.UUID `json:"registration_id,omitempty"`
	MemberID       *uuid.UUID `json:"member_id,omitempty"`
	Status         string     `json:"status"`
	Attempt        int        `json:"attempt"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
