package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Topics emitted by the scheduling engine. External collaborators (order
// processing, standalone notification workers, analytics) consume these;
// nothing here blocks on them.
const (
	EventAppointmentScheduled   = "booking.appointment.scheduled.v1"
	EventAppointmentConfirmed   = "booking.appointment.confirmed.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "booking.appointment.cancelled.v1"
	EventAppointmentCompleted   = "booking.appointment.completed.v1"
	EventAppointmentNoShow      = "booking.appointment.no_show.v1"
	EventReminderRequested      = "booking.reminder.requested.v1"
)
