package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lvaldez/tarotdesk/internal/model"
	"github.com/lvaldez/tarotdesk/internal/outbox"
	"github.com/lvaldez/tarotdesk/internal/storage"
	"github.com/lvaldez/tarotdesk/libs/kafkax"
)

// Notifier turns booking events into client-facing messages. Reminder events
// carry their own channel and recipient; lifecycle events are emailed to the
// appointment's client. Delivery outcomes land in the notifications table and
// a failed send is terminal, not retried.
type Notifier struct {
	logger   *slog.Logger
	email    EmailSender
	whatsapp MessageSender
	appts    *storage.AppointmentRepository
	log      *storage.NotificationLog
	loc      *time.Location
}

func New(
	logger *slog.Logger,
	email EmailSender,
	whatsapp MessageSender,
	appts *storage.AppointmentRepository,
	deliveryLog *storage.NotificationLog,
	loc *time.Location,
) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		logger:   logger,
		email:    email,
		whatsapp: whatsapp,
		appts:    appts,
		log:      deliveryLog,
		loc:      loc,
	}
}

type reminderPayload struct {
	AppointmentID string `json:"appointment_id"`
	ClientID      string `json:"client_id"`
	Channel       string `json:"channel"`
	Recipient     string `json:"recipient"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	MeetingURL    string `json:"meeting_url"`
}

type transitionPayload struct {
	AppointmentID string `json:"appointment_id"`
}

func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)

	switch meta.EventType {
	case outbox.EventReminderRequested:
		return n.handleReminder(ctx, msg.Value)
	case outbox.EventAppointmentScheduled,
		outbox.EventAppointmentConfirmed,
		outbox.EventAppointmentRescheduled,
		outbox.EventAppointmentCancelled:
		return n.handleTransition(ctx, meta.EventType, msg.Value)
	default:
		// Completed and no-show stay internal; nothing to tell the client.
		return nil
	}
}

func (n *Notifier) handleReminder(ctx context.Context, raw []byte) error {
	var payload reminderPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		n.logger.Error("invalid reminder payload", "err", err)
		return nil
	}
	if payload.AppointmentID == "" || payload.Channel == "" || payload.Recipient == "" {
		n.logger.Error("missing reminder fields", "appointment_id", payload.AppointmentID)
		return nil
	}

	when := payload.StartTime
	if t, err := time.Parse(time.RFC3339, payload.StartTime); err == nil {
		when = t.In(n.loc).Format("Monday, 2 January 2006 at 15:04")
	}
	body := fmt.Sprintf("Your tarot session is coming up on %s.", when)
	if payload.MeetingURL != "" {
		body += fmt.Sprintf(" Join here: %s", payload.MeetingURL)
	}

	var sendErr error
	switch payload.Channel {
	case "email":
		sendErr = n.email.Send(payload.Recipient, "Your session reminder", body)
	case "whatsapp":
		sendErr = n.whatsapp.Send(ctx, payload.Recipient, body)
	default:
		n.logger.Error("unsupported reminder channel", "channel", payload.Channel)
		return nil
	}

	return n.record(ctx, storage.NotificationRecord{
		AppointmentID: payload.AppointmentID,
		Kind:          "reminder",
		Channel:       payload.Channel,
		Recipient:     payload.Recipient,
	}, sendErr)
}

func (n *Notifier) handleTransition(ctx context.Context, eventType string, raw []byte) error {
	var payload transitionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		n.logger.Error("invalid transition payload", "err", err)
		return nil
	}
	appt, err := n.appts.Get(ctx, payload.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			n.logger.Error("transition event for unknown appointment", "appointment_id", payload.AppointmentID)
			return nil
		}
		return err
	}
	if appt.ClientEmail == "" {
		return nil
	}

	subject, body := n.composeTransition(eventType, appt)
	sendErr := n.email.Send(appt.ClientEmail, subject, body)

	return n.record(ctx, storage.NotificationRecord{
		AppointmentID: appt.ID,
		Kind:          eventType,
		Channel:       "email",
		Recipient:     appt.ClientEmail,
	}, sendErr)
}

func (n *Notifier) composeTransition(eventType string, appt model.Appointment) (string, string) {
	when := appt.StartTime.In(n.loc).Format("Monday, 2 January 2006 at 15:04")
	switch eventType {
	case outbox.EventAppointmentScheduled:
		return "Session booked",
			fmt.Sprintf("Your tarot session is booked for %s. You will receive meeting details once it is confirmed.", when)
	case outbox.EventAppointmentConfirmed:
		body := fmt.Sprintf("Your tarot session on %s is confirmed.", when)
		if appt.MeetingURL != "" {
			body += fmt.Sprintf(" Join here: %s", appt.MeetingURL)
		}
		if appt.MeetingPassword != "" {
			body += fmt.Sprintf(" Password: %s", appt.MeetingPassword)
		}
		return "Session confirmed", body
	case outbox.EventAppointmentRescheduled:
		return "Session rescheduled",
			fmt.Sprintf("Your tarot session has been moved to %s.", when)
	case outbox.EventAppointmentCancelled:
		body := "Your tarot session has been cancelled."
		if appt.CancellationReason != "" {
			body += " Reason: " + appt.CancellationReason
		}
		body += " Your session credit has been released and can be booked again."
		return "Session cancelled", body
	}
	return "Session update", fmt.Sprintf("Your tarot session on %s has been updated.", when)
}

func (n *Notifier) record(ctx context.Context, rec storage.NotificationRecord, sendErr error) error {
	rec.Status = "sent"
	if sendErr != nil {
		rec.Status = "failed"
		rec.ErrorReason = sendErr.Error()
		n.logger.Error("notification send failed", "kind", rec.Kind, "channel", rec.Channel, "err", sendErr)
	}
	if err := n.log.Insert(ctx, rec); err != nil {
		n.logger.Error("failed to persist notification", "err", err)
		return err
	}
	return nil
}
