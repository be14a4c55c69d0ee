package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-events/enrollment/internal/models"
	"github.com/aura-events/enrollment/pkg/queue"
)

// Jobs is the queue side the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// LogStore records delivery attempts.
type LogStore interface {
	Insert(ctx context.Context, l *models.NotificationLog) error
}

// Deliverer sends one rendered notification.
type Deliverer interface {
	Deliver(ctx context.Context, payload queue.NotificationPayload) error
}

// LogDeliverer writes notifications to the logger instead of an outbound channel.
type LogDeliverer struct {
	logger *zap.Logger
}

// NewLogDeliverer creates a deliverer that only logs.
func NewLogDeliverer(logger *zap.Logger) *LogDeliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDeliverer{logger: logger}
}

// Deliver logs payload.
func (d *LogDeliverer) Deliver(_ context.Context, payload queue.NotificationPayload) error {
	fields := []zap.Field{zap.String("template", payload.Template), zap.String("event_id", payload.EventID.String())}
	if payload.MemberID != nil {
		fields = append(fields, zap.String("member_id", payload.MemberID.String()))
	}
	for k, v := range payload.Placeholders {
		fields = append(fields, zap.String("ph_"+k, v))
	}
	d.logger.Info("notification", fields...)
	return nil
}

// Processor delivers queued notification jobs and logs each attempt.
type Processor struct {
	jobs      Jobs
	deliverer Deliverer
	logs      LogStore
	logger    *zap.Logger
	backoff   time.Duration
	now       func() time.Time
}

// NewProcessor creates a notification processor.
func NewProcessor(jobs Jobs, deliverer Deliverer, logs LogStore, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{jobs: jobs, deliverer: deliverer, logs: logs, logger: logger, backoff: queue.RetryBackoff, now: time.Now}
}

// Process executes one notification job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	entry := &models.NotificationLog{
		JobID:          job.ID,
		Template:       payload.Template,
		EventID:        &payload.EventID,
		RegistrationID: payload.RegistrationID,
		MemberID:       payload.MemberID,
		Attempt:        job.Attempt,
	}
	deliverErr := p.deliverer.Deliver(ctx, payload)
	if deliverErr != nil {
		entry.Status = models.NotificationLogStatusFailed
		entry.ErrorMessage = deliverErr.Error()
	} else {
		sent := p.now()
		entry.Status = models.NotificationLogStatusSent
		entry.SentAt = &sent
	}
	if p.logs != nil {
		if err := p.logs.Insert(ctx, entry); err != nil {
			p.logger.Warn("notification log insert failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if deliverErr != nil {
		return fmt.Errorf("deliver %s: %w", payload.Template, deliverErr)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
