package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/lvaldez/tarotdesk/internal/audit"
	"github.com/lvaldez/tarotdesk/internal/booking"
	"github.com/lvaldez/tarotdesk/internal/model"
	"github.com/lvaldez/tarotdesk/internal/storage"
	"github.com/lvaldez/tarotdesk/libs/httpx"
)

// AdminHandler serves the practitioner's management surface. Role enforcement
// happens in middleware; every request reaching here is an admin.
type AdminHandler struct {
	manager *booking.Manager
	audit   *audit.Repository
	logger  *slog.Logger
}

func NewAdminHandler(manager *booking.Manager, auditRepo *audit.Repository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{manager: manager, audit: auditRepo, logger: logger}
}

func adminActor(r *http.Request) booking.Actor {
	actor := booking.Actor{Admin: true}
	if claims := httpx.ClaimsFromContext(r.Context()); claims != nil {
		actor.ID = claims.Sub
	}
	return actor
}

// List answers GET /api/v1/admin/appointments with status, date, search and
// pagination filters.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cal := h.manager.Calendar()

	var f storage.AdminFilter
	if raw := q.Get("status"); raw != "" {
		status := model.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, kindValidation, "unknown status filter")
			return
		}
		f.Status = status
	}
	if raw := q.Get("date"); raw != "" {
		day, err := cal.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, kindValidation, "invalid date, expected YYYY-MM-DD")
			return
		}
		f.DayStart = day
		f.DayEnd = day.AddDate(0, 0, 1)
	}
	f.Search = q.Get("search")
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	appts, total, err := h.manager.AdminList(r.Context(), f)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": toViews(appts, cal.Location(), true),
		"total":        total,
	})
}

// Get answers GET /api/v1/admin/appointments/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.manager.Get(r.Context(), r.PathValue("id"), booking.Actor{Admin: true})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(appt, h.manager.Calendar().Location(), true))
}

type updateAppointmentRequest struct {
	ClientNotes     *string `json:"client_notes"`
	AdminNotes      *string `json:"admin_notes"`
	MeetingURL      *string `json:"meeting_url"`
	MeetingPassword *string `json:"meeting_password"`
}

// Update answers PATCH /api/v1/admin/appointments/{id}: free-text and meeting
// fields only, never the interval or the status.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClientNotes == nil && req.AdminNotes == nil && req.MeetingURL == nil && req.MeetingPassword == nil {
		writeError(w, http.StatusUnprocessableEntity, kindValidation, "no updatable fields provided")
		return
	}

	appt, err := h.manager.UpdateDetails(r.Context(), r.PathValue("id"),
		req.ClientNotes, req.AdminNotes, req.MeetingURL, req.MeetingPassword)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(appt, h.manager.Calendar().Location(), true))
}

type patchStatusRequest struct {
	Status          string `json:"status"`
	Reason          string `json:"reason"`
	MeetingURL      string `json:"meeting_url"`
	MeetingPassword string `json:"meeting_password"`
}

// PatchStatus answers PATCH /api/v1/admin/appointments/{id}/status. The
// target status selects the transition; the state machine guards decide
// whether it is legal from the current status.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	var req patchStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	actor := adminActor(r)

	var (
		appt model.Appointment
		err  error
	)
	switch model.Status(req.Status) {
	case model.StatusConfirmed:
		appt, err = h.manager.Confirm(r.Context(), id, actor,
			strings.TrimSpace(req.MeetingURL), strings.TrimSpace(req.MeetingPassword))
	case model.StatusCancelled:
		appt, err = h.manager.Cancel(r.Context(), id, actor, strings.TrimSpace(req.Reason))
	case model.StatusCompleted:
		appt, err = h.manager.Complete(r.Context(), id, actor)
	case model.StatusNoShow:
		appt, err = h.manager.MarkNoShow(r.Context(), id, actor)
	default:
		writeError(w, http.StatusUnprocessableEntity, kindValidation, "unknown target status")
		return
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(appt, h.manager.Calendar().Location(), true))
}

type rescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Reschedule answers PATCH /api/v1/admin/appointments/{id}/reschedule.
func (h *AdminHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, end, err := parseLocalInterval(h.manager.Calendar(), req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, kindValidation, err.Error())
		return
	}

	appt, err := h.manager.Reschedule(r.Context(), r.PathValue("id"), adminActor(r), start, end)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(appt, h.manager.Calendar().Location(), true))
}

// AuditTrail answers GET /api/v1/admin/audit-events with the most recent
// lifecycle transitions.
func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.audit.ListRecent(r.Context(), limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
