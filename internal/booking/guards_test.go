package booking

import (
	"testing"
	"time"

	"github.com/lvaldez/tarotdesk/internal/model"
)

func futureAppointment(status model.Status, now time.Time) model.Appointment {
	return model.Appointment{
		ID:        "a1",
		ClientID:  "c1",
		StartTime: now.Add(48 * time.Hour),
		EndTime:   now.Add(49 * time.Hour),
		Status:    status,
	}
}

func TestValidateInterval(t *testing.T) {
	now := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)

	if err := validateInterval(now.Add(time.Hour), now.Add(2*time.Hour), now); err != nil {
		t.Fatalf("future interval should validate: %v", err)
	}
	if err := validateInterval(now.Add(2*time.Hour), now.Add(time.Hour), now); !IsValidation(err) {
		t.Fatalf("inverted interval should be a validation error, got %v", err)
	}
	if err := validateInterval(now.Add(-time.Hour), now, now); !IsValidation(err) {
		t.Fatalf("past interval should be a validation error, got %v", err)
	}
}

func TestCanCancel(t *testing.T) {
	now := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	client := Actor{ID: "c1"}
	admin := Actor{ID: "admin", Admin: true}

	if err := canCancel(futureAppointment(model.StatusScheduled, now), client, now, 0); err != nil {
		t.Fatalf("scheduled should be cancellable: %v", err)
	}
	if err := canCancel(futureAppointment(model.StatusConfirmed, now), client, now, 0); err != nil {
		t.Fatalf("confirmed should be cancellable: %v", err)
	}
	if err := canCancel(futureAppointment(model.StatusCompleted, now), client, now, 0); err != ErrInvalidTransition {
		t.Fatalf("completed must not be cancellable, got %v", err)
	}
	if err := canCancel(futureAppointment(model.StatusCancelled, now), admin, now, 0); err != ErrInvalidTransition {
		t.Fatalf("cancelled is terminal, got %v", err)
	}

	started := futureAppointment(model.StatusConfirmed, now)
	started.StartTime = now.Add(-time.Minute)
	if err := canCancel(started, admin, now, 0); err != ErrInvalidTransition {
		t.Fatalf("a started appointment cannot be cancelled, got %v", err)
	}
}

func TestCanCancel_ClientCutoff(t *testing.T) {
	now := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)
	cutoff := 72 * time.Hour

	// 48h out: inside the 72h cutoff.
	a := futureAppointment(model.StatusScheduled, now)
	if err := canCancel(a, Actor{ID: "c1"}, now, cutoff); !IsValidation(err) {
		t.Fatalf("client inside cutoff should get a validation error, got %v", err)
	}
	if err := canCancel(a, Actor{ID: "admin", Admin: true}, now, cutoff); err != nil {
		t.Fatalf("admins bypass the cutoff: %v", err)
	}

	far := a
	far.StartTime = now.Add(96 * time.Hour)
	far.EndTime = far.StartTime.Add(time.Hour)
	if err := canCancel(far, Actor{ID: "c1"}, now, cutoff); err != nil {
		t.Fatalf("client outside cutoff should cancel freely: %v", err)
	}
}

func TestCanConfirmAndReschedule(t *testing.T) {
	now := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)

	if err := canConfirm(futureAppointment(model.StatusScheduled, now)); err != nil {
		t.Fatalf("scheduled should be confirmable: %v", err)
	}
	if err := canConfirm(futureAppointment(model.StatusConfirmed, now)); err != ErrInvalidTransition {
		t.Fatalf("double confirm must fail, got %v", err)
	}

	if err := canReschedule(futureAppointment(model.StatusConfirmed, now)); err != nil {
		t.Fatalf("confirmed should be reschedulable: %v", err)
	}
	if err := canReschedule(futureAppointment(model.StatusNoShow, now)); err != ErrInvalidTransition {
		t.Fatalf("no_show is terminal, got %v", err)
	}
}

func TestCanCompleteAndNoShow(t *testing.T) {
	now := time.Date(2026, 9, 7, 12, 0, 0, 0, time.UTC)

	upcoming := futureAppointment(model.StatusConfirmed, now)
	if err := canComplete(upcoming, now); !IsValidation(err) {
		t.Fatalf("completing before the end must fail validation, got %v", err)
	}
	if err := canMarkNoShow(upcoming, now); !IsValidation(err) {
		t.Fatalf("no-show before the start must fail validation, got %v", err)
	}

	past := upcoming
	past.StartTime = now.Add(-2 * time.Hour)
	past.EndTime = now.Add(-1 * time.Hour)
	if err := canComplete(past, now); err != nil {
		t.Fatalf("ended appointment should complete: %v", err)
	}
	if err := canMarkNoShow(past, now); err != nil {
		t.Fatalf("started appointment can be marked no-show: %v", err)
	}

	if err := canComplete(futureAppointment(model.StatusScheduled, now), now); err != ErrInvalidTransition {
		t.Fatalf("only confirmed appointments complete, got %v", err)
	}
}
