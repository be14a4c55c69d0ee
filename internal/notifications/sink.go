// Package notifications queues registration notifications and delivers them from the worker.
package notifications

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/enrollment/pkg/queue"
)

// Notification is a templated message about one registration or event.
type Notification struct {
	Template       string
	EventID        uuid.UUID
	RegistrationID *uuid.UUID
	MemberID       *uuid.UUID
	Placeholders   map[string]string
}

// Enqueuer is the job queue a Sink publishes to.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// Sink hands notifications to the job queue. A disabled sink drops them.
type Sink struct {
	queue   Enqueuer
	enabled bool
	logger  *zap.Logger
}

// NewSink creates a queue-backed notification sink.
func NewSink(q Enqueuer, enabled bool, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{queue: q, enabled: enabled && q != nil, logger: logger}
}

// Notify enqueues n for delivery.
func (s *Sink) Notify(ctx context.Context, n Notification) error {
	if !s.enabled {
		s.logger.Debug("notification dropped", zap.String("template", n.Template))
		return nil
	}
	return s.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		Template:       n.Template,
		EventID:        n.EventID,
		RegistrationID: n.RegistrationID,
		MemberID:       n.MemberID,
		Placeholders:   n.Placeholders,
	})
}
