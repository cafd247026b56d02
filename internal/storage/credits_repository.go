package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lvaldez/tarotdesk/libs/db"
)

// SessionCredit is the local projection of a purchased session product: one
// order item grants one session of a fixed duration. The order subsystem owns
// the item; this table only tracks whether the session was consumed.
type SessionCredit struct {
	OrderItemID     string
	ClientID        string
	DurationMinutes int
	RedeemedBy      string
	CreatedAt       time.Time
}

type CreditRepository struct {
	pool *db.Pool
}

func NewCreditRepository(pool *db.Pool) *CreditRepository {
	return &CreditRepository{pool: pool}
}

// Upsert records a purchased session credit from an order event. Duration
// updates are honored as long as the credit has not been redeemed.
func (r *CreditRepository) Upsert(ctx context.Context, tx pgx.Tx, c SessionCredit) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO session_credits (order_item_id, client_id, duration_minutes)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_item_id) DO UPDATE
		SET client_id = EXCLUDED.client_id,
			duration_minutes = EXCLUDED.duration_minutes,
			updated_at = now()
		WHERE session_credits.redeemed_by IS NULL
	`, c.OrderItemID, c.ClientID, c.DurationMinutes)
	return err
}

// GetForUpdate locks the credit row for the duration of the booking
// transaction so two bookings cannot redeem the same order item.
func (r *CreditRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, orderItemID, clientID string) (SessionCredit, error) {
	var c SessionCredit
	var redeemedBy *string
	err := tx.QueryRow(ctx, `
		SELECT order_item_id, client_id, duration_minutes, redeemed_by::text, created_at
		FROM session_credits
		WHERE order_item_id = $1 AND client_id = $2
		FOR UPDATE
	`, orderItemID, clientID).Scan(&c.OrderItemID, &c.ClientID, &c.DurationMinutes, &redeemedBy, &c.CreatedAt)
	if err != nil {
		return SessionCredit{}, err
	}
	if redeemedBy != nil {
		c.RedeemedBy = *redeemedBy
	}
	return c, nil
}

func (r *CreditRepository) Redeem(ctx context.Context, tx pgx.Tx, orderItemID, appointmentID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE session_credits
		SET redeemed_by = $2, updated_at = now()
		WHERE order_item_id = $1
	`, orderItemID, appointmentID)
	return err
}

// Release frees the credit consumed by a cancelled appointment so the client
// can book again with the same order item.
func (r *CreditRepository) Release(ctx context.Context, tx pgx.Tx, appointmentID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE session_credits
		SET redeemed_by = NULL, updated_at = now()
		WHERE redeemed_by = $1
	`, appointmentID)
	return err
}
