package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lvaldez/tarotdesk/internal/model"
	"github.com/lvaldez/tarotdesk/libs/db"
)

const appointmentColumns = `id::text, order_item_id, client_id, client_email, client_phone,
		start_time, end_time, status, client_notes, admin_notes,
		meeting_url, meeting_password, reminder_sent_at, confirmed_at, cancelled_at,
		cancellation_reason, created_at, updated_at`

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, order_item_id, client_id, client_email, client_phone,
			 start_time, end_time, status, client_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, appt.ID, appt.OrderItemID, appt.ClientID, appt.ClientEmail, appt.ClientPhone,
		appt.StartTime, appt.EndTime, appt.Status, appt.ClientNotes).
		Scan(&appt.CreatedAt, &appt.UpdatedAt)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) Confirm(ctx context.Context, tx pgx.Tx, id, meetingURL, meetingPassword string) (time.Time, error) {
	var confirmedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			confirmed_at = now(),
			meeting_url = CASE WHEN $3 <> '' THEN $3 ELSE meeting_url END,
			meeting_password = CASE WHEN $4 <> '' THEN $4 ELSE meeting_password END,
			updated_at = now()
		WHERE id = $1
		RETURNING confirmed_at
	`, id, model.StatusConfirmed, meetingURL, meetingPassword).Scan(&confirmedAt)
	return confirmedAt, err
}

func (r *AppointmentRepository) Cancel(ctx context.Context, tx pgx.Tx, id, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			cancelled_at = now(),
			cancellation_reason = $3,
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, id, model.StatusCancelled, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *AppointmentRepository) SetStatus(ctx context.Context, tx pgx.Tx, id string, status model.Status) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	return err
}

// UpdateTimes moves an appointment to a new interval. The exclusion
// constraint re-checks overlap against every other occupying row; the row
// being updated never conflicts with itself.
func (r *AppointmentRepository) UpdateTimes(ctx context.Context, tx pgx.Tx, id string, start, end time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET start_time = $2, end_time = $3, updated_at = now()
		WHERE id = $1
	`, id, start, end)
	return err
}

// UpdateDetails patches the free-text and meeting fields. Nil pointers leave
// the current value untouched.
func (r *AppointmentRepository) UpdateDetails(ctx context.Context, id string, clientNotes, adminNotes, meetingURL, meetingPassword *string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET client_notes = COALESCE($2, client_notes),
			admin_notes = COALESCE($3, admin_notes),
			meeting_url = COALESCE($4, meeting_url),
			meeting_password = COALESCE($5, meeting_password),
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, clientNotes, adminNotes, meetingURL, meetingPassword)
	return scanAppointment(row)
}

func (r *AppointmentRepository) StampReminderSent(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = $2
		WHERE id = $1 AND reminder_sent_at IS NULL
	`, id, at)
	return err
}

// ListOccupyingBetween returns appointments whose interval intersects
// [start, end) and whose status still blocks the slot. Cancelled rows never
// block. Read-only, no locking: display availability may lag a concurrent
// booking, which the booking-time constraint check closes.
func (r *AppointmentRepository) ListOccupyingBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, model.StatusCancelled, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *AppointmentRepository) ListByClient(ctx context.Context, clientID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// AdminFilter narrows the admin appointment listing. Zero values mean "any".
type AdminFilter struct {
	Status model.Status
	// Day bounds in the business time zone; both zero means any date.
	DayStart time.Time
	DayEnd   time.Time
	// Search matches client id, order item id, or notes, case-insensitively.
	Search string
	Page   int
	Limit  int
}

func (r *AppointmentRepository) AdminList(ctx context.Context, f AdminFilter) ([]model.Appointment, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if !f.DayStart.IsZero() && !f.DayEnd.IsZero() {
		where = append(where, "start_time >= "+arg(f.DayStart), "start_time < "+arg(f.DayEnd))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := arg("%" + s + "%")
		where = append(where, fmt.Sprintf(
			"(client_id ILIKE %s OR order_item_id ILIKE %s OR client_notes ILIKE %s OR admin_notes ILIKE %s)",
			p, p, p, p))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM appointments WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + cond + `
		ORDER BY start_time DESC
		LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return appts, total, nil
}

type IdempotencyRecord struct {
	ClientID        string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func (r *AppointmentRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, clientID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, clientID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (client_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (client_id, idempotency_key) DO NOTHING
	`, clientID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, clientID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *AppointmentRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, clientID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE client_id = $1 AND idempotency_key = $2
	`, clientID, key, appointmentID, statusCode, response)
	return err
}

func (r *AppointmentRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, clientID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT client_id,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE client_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, clientID, key).Scan(
		&rec.ClientID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}

type appointmentRow interface {
	Scan(dest ...any) error
}

func scanAppointment(row appointmentRow) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.OrderItemID,
		&a.ClientID,
		&a.ClientEmail,
		&a.ClientPhone,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.ClientNotes,
		&a.AdminNotes,
		&a.MeetingURL,
		&a.MeetingPassword,
		&a.ReminderSentAt,
		&a.ConfirmedAt,
		&a.CancelledAt,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// IsConflict reports an exclusion-constraint violation (pg code 23P01): a
// concurrent occupying appointment overlaps the written interval.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

// IsSerializationFailure reports a transaction that must be retried (40001).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func IsDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "42710" || pgErr.Code == "42P07")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
