package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lvaldez/tarotdesk/internal/booking"
	"github.com/lvaldez/tarotdesk/internal/model"
)

// Error kinds are a stable contract; clients switch on kind, never on message.
const (
	kindValidation             = "validation_error"
	kindSlotUnavailable        = "slot_unavailable"
	kindInvalidTransition      = "invalid_transition"
	kindConcurrentModification = "concurrent_modification"
	kindNotFound               = "not_found"
	kindInternal               = "internal"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Kind: kind, Message: message}})
}

// writeDomainError maps booking errors onto the envelope. Unrecognized errors
// are logged and surfaced as an opaque 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case booking.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, kindValidation, err.Error())
	case err == booking.ErrSlotUnavailable:
		writeError(w, http.StatusConflict, kindSlotUnavailable, "the requested slot is no longer available")
	case err == booking.ErrInvalidTransition:
		writeError(w, http.StatusConflict, kindInvalidTransition, "the appointment status does not allow this change")
	case err == booking.ErrConcurrentModification:
		writeError(w, http.StatusConflict, kindConcurrentModification, "the appointment was modified concurrently, retry")
	case err == booking.ErrNotFound:
		writeError(w, http.StatusNotFound, kindNotFound, "appointment not found")
	default:
		logger.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, kindInternal, "internal error")
	}
}

// appointmentView is the wire shape of an appointment. Wall-clock fields are
// rendered in the business time zone, matching what clients submit; absolute
// timestamps are UTC RFC 3339.
type appointmentView struct {
	ID                 string `json:"id"`
	OrderItemID        string `json:"order_item_id"`
	ClientID           string `json:"client_id"`
	Date               string `json:"date"`
	StartTime          string `json:"start_time"`
	EndTime            string `json:"end_time"`
	DurationMinutes    int    `json:"duration_minutes"`
	Status             string `json:"status"`
	ClientNotes        string `json:"client_notes,omitempty"`
	AdminNotes         string `json:"admin_notes,omitempty"`
	MeetingURL         string `json:"meeting_url,omitempty"`
	MeetingPassword    string `json:"meeting_password,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	ConfirmedAt        string `json:"confirmed_at,omitempty"`
	CancelledAt        string `json:"cancelled_at,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
}

func toView(a model.Appointment, loc *time.Location, admin bool) appointmentView {
	start := a.StartTime.In(loc)
	end := a.EndTime.In(loc)
	v := appointmentView{
		ID:                 a.ID,
		OrderItemID:        a.OrderItemID,
		ClientID:           a.ClientID,
		Date:               start.Format("2006-01-02"),
		StartTime:          start.Format("15:04"),
		EndTime:            end.Format("15:04"),
		DurationMinutes:    a.DurationMinutes(),
		Status:             string(a.Status),
		ClientNotes:        a.ClientNotes,
		MeetingURL:         a.MeetingURL,
		MeetingPassword:    a.MeetingPassword,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if admin {
		v.AdminNotes = a.AdminNotes
	}
	if a.ConfirmedAt != nil {
		v.ConfirmedAt = a.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	if a.CancelledAt != nil {
		v.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return v
}

func toViews(appts []model.Appointment, loc *time.Location, admin bool) []appointmentView {
	out := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, toView(a, loc, admin))
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid json body")
		return false
	}
	return true
}
