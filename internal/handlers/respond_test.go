package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lvaldez/tarotdesk/internal/booking"
)

func TestWriteDomainError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{&booking.ValidationError{}, http.StatusUnprocessableEntity, "validation_error"},
		{booking.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{booking.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{booking.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
		{booking.ErrNotFound, http.StatusNotFound, "not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, logger, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rec.Code)
		}
		var env errorEnvelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%v: invalid envelope: %v", tc.err, err)
		}
		if env.Error.Kind != tc.kind {
			t.Fatalf("%v: expected kind %q, got %q", tc.err, tc.kind, env.Error.Kind)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("%v: expected json content type, got %q", tc.err, ct)
		}
	}
}
