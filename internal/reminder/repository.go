package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lvaldez/tarotdesk/libs/db"
	otelx "github.com/lvaldez/tarotdesk/libs/otel"
)

// Job is a pending reminder for a scheduled appointment. Jobs are written in
// the booking transaction and drained by the worker.
type Job struct {
	ID            int64
	AppointmentID string
	Channel       string
	Recipient     string
	RemindAt      time.Time
	Traceparent   string
	Tracestate    string
}

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO reminder_jobs (appointment_id, channel, recipient, remind_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, job.AppointmentID, job.Channel, job.Recipient, job.RemindAt, traceparent, tracestate)
	return err
}

// DeleteUnsent drops pending jobs for an appointment. Called on cancel and
// before re-enqueueing on reschedule; reminders already sent stay recorded.
func (r *Repository) DeleteUnsent(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM reminder_jobs
		WHERE appointment_id = $1 AND sent_at IS NULL
	`, appointmentID)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, appointment_id::text, channel, recipient, remind_at, traceparent, tracestate
		FROM reminder_jobs
		WHERE sent_at IS NULL AND remind_at <= $1
		ORDER BY remind_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.Channel, &j.Recipient, &j.RemindAt, &j.Traceparent, &j.Tracestate); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkSent(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET sent_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
