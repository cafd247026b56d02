package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lvaldez/tarotdesk/internal/booking"
	"github.com/lvaldez/tarotdesk/libs/auth"
	"github.com/lvaldez/tarotdesk/libs/httpx"
)

// AppointmentHandler serves the client-facing booking surface. Identity comes
// from the verified JWT claims put in context by the auth middleware.
type AppointmentHandler struct {
	manager *booking.Manager
	logger  *slog.Logger
}

func NewAppointmentHandler(manager *booking.Manager, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{manager: manager, logger: logger}
}

func (h *AppointmentHandler) actor(r *http.Request) booking.Actor {
	claims := httpx.ClaimsFromContext(r.Context())
	if claims == nil {
		return booking.Actor{}
	}
	return booking.Actor{ID: claims.Sub, Admin: claims.Role == auth.RoleAdmin}
}

type slotItem struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type availableSlotsResponse struct {
	Date            string     `json:"date"`
	DurationMinutes int        `json:"duration_minutes"`
	Slots           []slotItem `json:"slots"`
}

// AvailableSlots answers GET /api/v1/appointments/available-slots. A missing
// or unparsable date is a 400, not a 422; the date is addressing, not payload.
func (h *AppointmentHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	cal := h.manager.Calendar()

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, kindValidation, "date query parameter is required")
		return
	}
	date, err := cal.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindValidation, "invalid date, expected YYYY-MM-DD")
		return
	}

	duration := h.manager.DefaultDuration()
	if raw := r.URL.Query().Get("duration"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			writeError(w, http.StatusBadRequest, kindValidation, "invalid duration, expected minutes")
			return
		}
		duration = time.Duration(minutes) * time.Minute
	}

	slots, err := h.manager.AvailableSlots(r.Context(), date, duration)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Time:      s.Start.In(cal.Location()).Format("15:04"),
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, availableSlotsResponse{
		Date:            dateStr,
		DurationMinutes: int(duration / time.Minute),
		Slots:           items,
	})
}

type createAppointmentRequest struct {
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	OrderItemID string `json:"order_item_id"`
	ClientNotes string `json:"client_notes"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

// Create answers POST /api/v1/appointments. The Idempotency-Key header makes
// retried submissions return the originally created appointment.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, end, err := parseLocalInterval(h.manager.Calendar(), req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, kindValidation, err.Error())
		return
	}

	actor := h.actor(r)
	appt, err := h.manager.Book(r.Context(), booking.BookRequest{
		ClientID:       actor.ID,
		ClientEmail:    strings.TrimSpace(req.Email),
		ClientPhone:    strings.TrimSpace(req.Phone),
		OrderItemID:    strings.TrimSpace(req.OrderItemID),
		Start:          start,
		End:            end,
		ClientNotes:    strings.TrimSpace(req.ClientNotes),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toView(appt, h.manager.Calendar().Location(), false))
}

// ListMine answers GET /api/v1/appointments with the caller's appointments.
func (h *AppointmentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor := h.actor(r)
	appts, err := h.manager.ListForClient(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": toViews(appts, h.manager.Calendar().Location(), false),
	})
}

// Get answers GET /api/v1/appointments/{id}; other clients' rows read as 404.
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.manager.Get(r.Context(), r.PathValue("id"), h.actor(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(appt, h.manager.Calendar().Location(), false))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel answers POST /api/v1/appointments/{id}/cancel.
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.manager.Cancel(r.Context(), r.PathValue("id"), h.actor(r), strings.TrimSpace(req.Reason))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(appt, h.manager.Calendar().Location(), false))
}
