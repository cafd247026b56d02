package booking

import (
	"time"

	"github.com/lvaldez/tarotdesk/internal/model"
)

// Actor identifies who is driving a transition. Admins bypass client-only
// restrictions (ownership, cancellation cutoff) but not the state machine.
type Actor struct {
	ID    string
	Admin bool
}

func validateInterval(start, end, now time.Time) error {
	if !end.After(start) {
		return validationf("end time must be after start time")
	}
	if start.Before(now) {
		return validationf("interval is in the past")
	}
	return nil
}

func canConfirm(a model.Appointment) error {
	if a.Status != model.StatusScheduled {
		return ErrInvalidTransition
	}
	return nil
}

func canReschedule(a model.Appointment) error {
	switch a.Status {
	case model.StatusScheduled, model.StatusConfirmed:
		return nil
	}
	return ErrInvalidTransition
}

// canCancel permits cancellation of a non-terminal appointment before its
// start. Clients are additionally bound by the configurable cutoff; admins
// are not.
func canCancel(a model.Appointment, actor Actor, now time.Time, clientCutoff time.Duration) error {
	switch a.Status {
	case model.StatusScheduled, model.StatusConfirmed:
	default:
		return ErrInvalidTransition
	}
	if !now.Before(a.StartTime) {
		return ErrInvalidTransition
	}
	if !actor.Admin && clientCutoff > 0 && now.After(a.StartTime.Add(-clientCutoff)) {
		return validationf("cancellation window closed (%s before start)", clientCutoff)
	}
	return nil
}

func canComplete(a model.Appointment, now time.Time) error {
	if a.Status != model.StatusConfirmed {
		return ErrInvalidTransition
	}
	if now.Before(a.EndTime) {
		return validationf("appointment has not ended yet")
	}
	return nil
}

// No-show is decided lazily from wall clock when the admin acts; there is no
// background job watching for missed appointments.
func canMarkNoShow(a model.Appointment, now time.Time) error {
	if a.Status != model.StatusConfirmed {
		return ErrInvalidTransition
	}
	if now.Before(a.StartTime) {
		return validationf("appointment has not started yet")
	}
	return nil
}
