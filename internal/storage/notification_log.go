package storage

import (
	"context"

	"github.com/lvaldez/tarotdesk/libs/db"
)

// NotificationRecord is one delivery attempt, kept for support queries.
type NotificationRecord struct {
	AppointmentID string
	Kind          string
	Channel       string
	Recipient     string
	Status        string
	ErrorReason   string
}

type NotificationLog struct {
	pool *db.Pool
}

func NewNotificationLog(pool *db.Pool) *NotificationLog {
	return &NotificationLog{pool: pool}
}

func (l *NotificationLog) Insert(ctx context.Context, n NotificationRecord) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, kind, channel, recipient, status, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.AppointmentID, n.Kind, n.Channel, n.Recipient, n.Status, n.ErrorReason)
	return err
}
