package model

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Occupying reports whether an appointment in this status blocks its time
// interval against new bookings. Only cancelled appointments free their slot.
func (s Status) Occupying() bool {
	return s != StatusCancelled
}

type Appointment struct {
	ID                 string
	OrderItemID        string
	ClientID           string
	ClientEmail        string
	ClientPhone        string
	StartTime          time.Time
	EndTime            time.Time
	Status             Status
	ClientNotes        string
	AdminNotes         string
	MeetingURL         string
	MeetingPassword    string
	ReminderSentAt     *time.Time
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

func (a Appointment) DurationMinutes() int {
	return int(a.Duration() / time.Minute)
}
