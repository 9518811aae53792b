package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventorizon/backend/internal/metrics"
	"github.com/eventorizon/backend/pkg/queue"
)

// JobQueue is the subset of queue.Queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
}

// EmailLogStore records delivery attempts.
type EmailLogStore interface {
	Create(ctx context.Context, eventID, registrationID uuid.UUID, emailType, recipient, subject string) (uuid.UUID, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor delivers queued notification emails and records each attempt in email_logs.
type EmailProcessor struct {
	queue   JobQueue
	logs    EmailLogStore
	sender  Sender
	logger  *zap.Logger
	backoff time.Duration
}

// NewEmailProcessor creates an email job processor.
func NewEmailProcessor(q JobQueue, logs EmailLogStore, sender Sender, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{queue: q, logs: logs, sender: sender, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.RecipientEmail == "" {
		return fmt.Errorf("job %s has no recipient", job.ID)
	}

	logID, err := p.logs.Create(ctx, payload.EventID, payload.RegistrationID, payload.EmailType, payload.RecipientEmail, payload.Subject)
	if err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	sendErr := p.sender.Send(ctx, Message{
		To:      payload.RecipientEmail,
		ToName:  payload.RecipientName,
		Subject: payload.Subject,
		Body:    payload.Body,
	})
	if sendErr != nil {
		if err := p.logs.MarkFailed(ctx, logID, sendErr.Error()); err != nil {
			p.logger.Error("mark email failed", zap.String("log_id", logID.String()), zap.Error(err))
		}
		return fmt.Errorf("send: %w", sendErr)
	}
	if err := p.logs.MarkSent(ctx, logID, time.Now().UTC()); err != nil {
		p.logger.Error("mark email sent", zap.String("log_id", logID.String()), zap.Error(err))
	}
	p.logger.Info("email sent",
		zap.String("job_id", job.ID),
		zap.String("email_type", payload.EmailType),
		zap.String("registration_id", payload.RegistrationID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
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
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			dead, reErr := p.queue.Retry(ctx, job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if dead {
				metrics.EmailJobs.WithLabelValues("dead").Inc()
			} else {
				metrics.EmailJobs.WithLabelValues("retried").Inc()
			}
			p.sleep(ctx)
			continue
		}
		metrics.EmailJobs.WithLabelValues("sent").Inc()
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
