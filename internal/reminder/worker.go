package reminder

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lvaldez/tarotdesk/internal/outbox"
	"github.com/lvaldez/tarotdesk/internal/storage"
	"github.com/lvaldez/tarotdesk/libs/db"
	otelx "github.com/lvaldez/tarotdesk/libs/otel"
)

// Worker drains due reminder jobs into outbox events. Delivery itself happens
// downstream (the notifier consumer); this loop only decides "it is time".
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *outbox.Repository
	appts     *storage.AppointmentRepository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, appts *storage.AppointmentRepository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		appts:     appts,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	jobs, err := w.repo.FetchDue(ctx, tx, now, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var sent []int64
	for _, job := range jobs {
		appt, err := w.appts.Get(ctx, job.AppointmentID)
		if err != nil {
			w.logger.Error("reminder job for unknown appointment", "appointment_id", job.AppointmentID, "err", err)
			sent = append(sent, job.ID)
			continue
		}
		if !appt.Status.Occupying() {
			// Cancelled between enqueue and due time; nothing to remind.
			sent = append(sent, job.ID)
			continue
		}

		payload, err := json.Marshal(map[string]any{
			"appointment_id": appt.ID,
			"client_id":      appt.ClientID,
			"channel":        job.Channel,
			"recipient":      job.Recipient,
			"start_time":     appt.StartTime.UTC().Format(time.RFC3339),
			"end_time":       appt.EndTime.UTC().Format(time.RFC3339),
			"meeting_url":    appt.MeetingURL,
		})
		if err != nil {
			w.logger.Error("failed to build reminder payload", "err", err)
			continue
		}

		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		if err := w.outbox.Insert(jobCtx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     outbox.EventReminderRequested,
			Payload:       payload,
		}); err != nil {
			return err
		}
		if err := w.appts.StampReminderSent(ctx, tx, appt.ID, now); err != nil {
			return err
		}
		sent = append(sent, job.ID)
	}

	if err := w.repo.MarkSent(ctx, tx, sent); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
