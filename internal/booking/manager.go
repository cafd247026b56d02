package booking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lvaldez/tarotdesk/internal/audit"
	"github.com/lvaldez/tarotdesk/internal/availability"
	"github.com/lvaldez/tarotdesk/internal/model"
	"github.com/lvaldez/tarotdesk/internal/outbox"
	"github.com/lvaldez/tarotdesk/internal/reminder"
	"github.com/lvaldez/tarotdesk/internal/storage"
)

type Config struct {
	// DefaultDuration is the slot length offered when the client does not ask
	// for a specific one.
	DefaultDuration time.Duration
	// AllowedDurations are the product-defined session lengths.
	AllowedDurations []time.Duration
	// SlotStep is the candidate-start spacing; zero means back-to-back slots
	// (step == duration).
	SlotStep time.Duration
	// ClientCancelCutoff is the lead time clients must respect when
	// cancelling; zero means any time before start. Admins are exempt.
	ClientCancelCutoff time.Duration
	ReminderOffsets    []time.Duration
	// BookingAttempts bounds the serialization-failure retry loop.
	BookingAttempts int
}

// Manager owns every appointment mutation. Availability reads are lock-free;
// the write paths rely on the appointments exclusion constraint plus row
// locks, so correctness holds across multiple server processes.
type Manager struct {
	repo      *storage.AppointmentRepository
	credits   *storage.CreditRepository
	outbox    *outbox.Repository
	audit     *audit.Repository
	reminders *reminder.Repository
	cal       *availability.Calendar
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func NewManager(
	repo *storage.AppointmentRepository,
	credits *storage.CreditRepository,
	outboxRepo *outbox.Repository,
	auditRepo *audit.Repository,
	reminders *reminder.Repository,
	cal *availability.Calendar,
	logger *slog.Logger,
	cfg Config,
) *Manager {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 60 * time.Minute
	}
	if len(cfg.AllowedDurations) == 0 {
		cfg.AllowedDurations = []time.Duration{30 * time.Minute, 60 * time.Minute}
	}
	if cfg.SlotStep <= 0 {
		cfg.SlotStep = 0 // resolved per-duration in step()
	}
	if cfg.BookingAttempts <= 0 {
		cfg.BookingAttempts = 3
	}
	return &Manager{
		repo:      repo,
		credits:   credits,
		outbox:    outboxRepo,
		audit:     auditRepo,
		reminders: reminders,
		cal:       cal,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (m *Manager) Calendar() *availability.Calendar {
	return m.cal
}

func (m *Manager) DefaultDuration() time.Duration {
	return m.cfg.DefaultDuration
}

func (m *Manager) durationAllowed(d time.Duration) bool {
	for _, allowed := range m.cfg.AllowedDurations {
		if d == allowed {
			return true
		}
	}
	return false
}

func (m *Manager) step(duration time.Duration) time.Duration {
	if m.cfg.SlotStep > 0 {
		return m.cfg.SlotStep
	}
	return duration
}

// AvailableSlots computes the slot grid for a business-local date. Cancelled
// appointments never block; candidates starting before now are excluded.
func (m *Manager) AvailableSlots(ctx context.Context, date time.Time, duration time.Duration) ([]availability.Slot, error) {
	if duration <= 0 {
		duration = m.cfg.DefaultDuration
	}
	if !m.durationAllowed(duration) {
		return nil, validationf("unsupported session duration %d minutes", int(duration/time.Minute))
	}

	windows := m.cal.WindowsFor(date)
	candidates := availability.Candidates(windows, duration, m.step(duration), m.now().In(m.cal.Location()))
	if len(candidates) == 0 {
		return nil, nil
	}

	dayStart := windows[0].Start
	dayEnd := windows[len(windows)-1].End
	occupying, err := m.repo.ListOccupyingBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	busy := make([]availability.Interval, 0, len(occupying))
	for _, a := range occupying {
		busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime})
	}
	return availability.MarkAvailability(candidates, busy), nil
}

type BookRequest struct {
	ClientID       string
	ClientEmail    string
	ClientPhone    string
	OrderItemID    string
	Start          time.Time
	End            time.Time
	ClientNotes    string
	IdempotencyKey string
}

// Book reserves a slot against a purchased session. The occupancy check and
// the insert are one atomic unit: the exclusion constraint rejects any
// overlap with an occupying row at write time, so two clients racing for the
// same interval cannot both commit.
func (m *Manager) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	now := m.now()
	if err := validateInterval(req.Start, req.End, now); err != nil {
		return model.Appointment{}, err
	}
	duration := req.End.Sub(req.Start)
	if !m.durationAllowed(duration) {
		return model.Appointment{}, validationf("unsupported session duration %d minutes", int(duration/time.Minute))
	}
	if !m.cal.Contains(req.Start, req.End) {
		return model.Appointment{}, validationf("requested interval is outside business hours")
	}
	if req.OrderItemID == "" {
		return model.Appointment{}, validationf("order item is required")
	}

	var appt model.Appointment
	err := m.withRetry(ctx, func(tx pgx.Tx) error {
		var err error
		appt, err = m.bookTx(ctx, tx, req, duration)
		return err
	})
	return appt, err
}

func (m *Manager) bookTx(ctx context.Context, tx pgx.Tx, req BookRequest, duration time.Duration) (model.Appointment, error) {
	if req.IdempotencyKey != "" {
		rec, exists, err := m.repo.LockIdempotencyKey(ctx, tx, req.ClientID, req.IdempotencyKey)
		if err != nil {
			return model.Appointment{}, err
		}
		if exists && rec.AppointmentID != "" {
			return m.repo.Get(ctx, rec.AppointmentID)
		}
	}

	credit, err := m.credits.GetForUpdate(ctx, tx, req.OrderItemID, req.ClientID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, validationf("order item does not grant a session")
		}
		return model.Appointment{}, err
	}
	if credit.RedeemedBy != "" {
		return model.Appointment{}, validationf("order item session already booked")
	}
	if time.Duration(credit.DurationMinutes)*time.Minute != duration {
		return model.Appointment{}, validationf("purchased session is %d minutes", credit.DurationMinutes)
	}

	appt := model.Appointment{
		ID:          uuid.NewString(),
		OrderItemID: req.OrderItemID,
		ClientID:    req.ClientID,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		StartTime:   req.Start,
		EndTime:     req.End,
		Status:      model.StatusScheduled,
		ClientNotes: req.ClientNotes,
	}
	if err := m.repo.Create(ctx, tx, &appt); err != nil {
		if storage.IsConflict(err) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		return model.Appointment{}, err
	}
	if err := m.credits.Redeem(ctx, tx, req.OrderItemID, appt.ID); err != nil {
		return model.Appointment{}, err
	}

	if err := m.recordTransition(ctx, tx, appt, outbox.EventAppointmentScheduled, Actor{ID: req.ClientID}, nil); err != nil {
		return model.Appointment{}, err
	}
	if err := m.enqueueReminders(ctx, tx, appt); err != nil {
		return model.Appointment{}, err
	}

	if req.IdempotencyKey != "" {
		if err := m.repo.FinalizeIdempotency(ctx, tx, req.ClientID, req.IdempotencyKey, appt.ID, 201, nil); err != nil {
			return model.Appointment{}, err
		}
	}
	return appt, nil
}

// Confirm moves a scheduled appointment to confirmed and optionally attaches
// the meeting coordinates. Admin-only; the handler enforces the role.
func (m *Manager) Confirm(ctx context.Context, id string, actor Actor, meetingURL, meetingPassword string) (model.Appointment, error) {
	var appt model.Appointment
	err := m.withRetry(ctx, func(tx pgx.Tx) error {
		a, err := m.getOwnedForUpdate(ctx, tx, id, actor)
		if err != nil {
			return err
		}
		if err := canConfirm(a); err != nil {
			return err
		}
		confirmedAt, err := m.repo.Confirm(ctx, tx, id, meetingURL, meetingPassword)
		if err != nil {
			return err
		}
		a.Status = model.StatusConfirmed
		a.ConfirmedAt = &confirmedAt
		if meetingURL != "" {
			a.MeetingURL = meetingURL
		}
		if meetingPassword != "" {
			a.MeetingPassword = meetingPassword
		}
		if err := m.recordTransition(ctx, tx, a, outbox.EventAppointmentConfirmed, actor, nil); err != nil {
			return err
		}
		appt = a
		return nil
	})
	return appt, err
}

// Reschedule moves a non-terminal appointment to a new interval, keeping its
// status. The exclusion constraint validates the new interval against every
// other occupying row; the appointment's own row never conflicts with itself.
func (m *Manager) Reschedule(ctx context.Context, id string, actor Actor, start, end time.Time) (model.Appointment, error) {
	now := m.now()
	if err := validateInterval(start, end, now); err != nil {
		return model.Appointment{}, err
	}
	duration := end.Sub(start)
	if !m.durationAllowed(duration) {
		return model.Appointment{}, validationf("unsupported session duration %d minutes", int(duration/time.Minute))
	}
	if !m.cal.Contains(start, end) {
		return model.Appointment{}, validationf("requested interval is outside business hours")
	}

	var appt model.Appointment
	err := m.withRetry(ctx, func(tx pgx.Tx) error {
		a, err := m.getOwnedForUpdate(ctx, tx, id, actor)
		if err != nil {
			return err
		}
		if err := canReschedule(a); err != nil {
			return err
		}
		if duration != a.Duration() {
			return validationf("session duration must remain %d minutes", a.DurationMinutes())
		}
		if err := m.repo.UpdateTimes(ctx, tx, id, start, end); err != nil {
			if storage.IsConflict(err) {
				return ErrSlotUnavailable
			}
			return err
		}
		previous := map[string]any{
			"previous_start": a.StartTime.UTC().Format(time.RFC3339),
			"previous_end":   a.EndTime.UTC().Format(time.RFC3339),
		}
		a.StartTime = start
		a.EndTime = end
		if err := m.recordTransition(ctx, tx, a, outbox.EventAppointmentRescheduled, actor, previous); err != nil {
			return err
		}
		// Pending reminders follow the appointment to its new time.
		if err := m.reminders.DeleteUnsent(ctx, tx, id); err != nil {
			return err
		}
		if err := m.enqueueReminders(ctx, tx, a); err != nil {
			return err
		}
		appt = a
		return nil
	})
	return appt, err
}

// Cancel terminates a scheduled or confirmed appointment and releases the
// session credit so the order item can be booked again.
func (m *Manager) Cancel(ctx context.Context, id string, actor Actor, reason string) (model.Appointment, error) {
	var appt model.Appointment
	err := m.withRetry(ctx, func(tx pgx.Tx) error {
		a, err := m.getOwnedForUpdate(ctx, tx, id, actor)
		if err != nil {
			return err
		}
		if err := canCancel(a, actor, m.now(), m.cfg.ClientCancelCutoff); err != nil {
			return err
		}
		cancelledAt, err := m.repo.Cancel(ctx, tx, id, reason)
		if err != nil {
			return err
		}
		a.Status = model.StatusCancelled
		a.CancelledAt = &cancelledAt
		a.CancellationReason = reason
		if err := m.credits.Release(ctx, tx, id); err != nil {
			return err
		}
		if err := m.reminders.DeleteUnsent(ctx, tx, id); err != nil {
			return err
		}
		if err := m.recordTransition(ctx, tx, a, outbox.EventAppointmentCancelled, actor, map[string]any{"reason": reason}); err != nil {
			return err
		}
		appt = a
		return nil
	})
	return appt, err
}

// Complete marks a confirmed appointment as held, only after its end time.
func (m *Manager) Complete(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	return m.terminate(ctx, id, actor, model.StatusCompleted, outbox.EventAppointmentCompleted, canComplete)
}

// MarkNoShow marks a confirmed appointment the client missed.
func (m *Manager) MarkNoShow(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	return m.terminate(ctx, id, actor, model.StatusNoShow, outbox.EventAppointmentNoShow, canMarkNoShow)
}

func (m *Manager) terminate(
	ctx context.Context,
	id string,
	actor Actor,
	status model.Status,
	eventType string,
	guard func(model.Appointment, time.Time) error,
) (model.Appointment, error) {
	var appt model.Appointment
	err := m.withRetry(ctx, func(tx pgx.Tx) error {
		a, err := m.getOwnedForUpdate(ctx, tx, id, actor)
		if err != nil {
			return err
		}
		if err := guard(a, m.now()); err != nil {
			return err
		}
		if err := m.repo.SetStatus(ctx, tx, id, status); err != nil {
			return err
		}
		a.Status = status
		if err := m.recordTransition(ctx, tx, a, eventType, actor, nil); err != nil {
			return err
		}
		appt = a
		return nil
	})
	return appt, err
}

// Get returns an appointment, hiding other clients' rows from non-admins.
func (m *Manager) Get(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	a, err := m.repo.Get(ctx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	if !actor.Admin && a.ClientID != actor.ID {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *Manager) ListForClient(ctx context.Context, clientID string) ([]model.Appointment, error) {
	return m.repo.ListByClient(ctx, clientID, 0)
}

func (m *Manager) AdminList(ctx context.Context, f storage.AdminFilter) ([]model.Appointment, int, error) {
	return m.repo.AdminList(ctx, f)
}

// UpdateDetails patches notes and meeting fields without touching the state
// machine. Nil pointers leave the current value in place.
func (m *Manager) UpdateDetails(ctx context.Context, id string, clientNotes, adminNotes, meetingURL, meetingPassword *string) (model.Appointment, error) {
	a, err := m.repo.UpdateDetails(ctx, id, clientNotes, adminNotes, meetingURL, meetingPassword)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	return a, nil
}

func (m *Manager) getOwnedForUpdate(ctx context.Context, tx pgx.Tx, id string, actor Actor) (model.Appointment, error) {
	a, err := m.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	if !actor.Admin && a.ClientID != actor.ID {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

// withRetry runs fn in a transaction, retrying serialization failures up to
// the configured bound. Each attempt re-runs the full guard and occupancy
// checks against fresh state.
func (m *Manager) withRetry(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < m.cfg.BookingAttempts; attempt++ {
		tx, err := m.repo.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			if storage.IsSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			if storage.IsSerializationFailure(err) {
				lastErr = err
				continue
			}
			if storage.IsConflict(err) {
				return ErrSlotUnavailable
			}
			return err
		}
		return nil
	}
	m.logger.Warn("transaction retry budget exhausted", "attempts", m.cfg.BookingAttempts, "err", lastErr)
	return ErrConcurrentModification
}

func (m *Manager) recordTransition(ctx context.Context, tx pgx.Tx, a model.Appointment, eventType string, actor Actor, extra map[string]any) error {
	payload := map[string]any{
		"appointment_id": a.ID,
		"client_id":      a.ClientID,
		"order_item_id":  a.OrderItemID,
		"status":         a.Status,
		"start_time":     a.StartTime.UTC().Format(time.RFC3339),
		"end_time":       a.EndTime.UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := m.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       raw,
	}); err != nil {
		return err
	}
	return m.audit.Record(ctx, tx, eventType, actor.ID, payload)
}

func (m *Manager) enqueueReminders(ctx context.Context, tx pgx.Tx, a model.Appointment) error {
	now := m.now()
	for _, offset := range m.cfg.ReminderOffsets {
		remindAt := a.StartTime.Add(-offset)
		if remindAt.Before(now) {
			continue
		}
		if a.ClientEmail != "" {
			if err := m.reminders.Insert(ctx, tx, reminder.Job{
				AppointmentID: a.ID,
				Channel:       reminder.ChannelEmail,
				Recipient:     a.ClientEmail,
				RemindAt:      remindAt,
			}); err != nil {
				return err
			}
		}
		if a.ClientPhone != "" {
			if err := m.reminders.Insert(ctx, tx, reminder.Job{
				AppointmentID: a.ID,
				Channel:       reminder.ChannelWhatsApp,
				Recipient:     a.ClientPhone,
				RemindAt:      remindAt,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
