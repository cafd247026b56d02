package handlers

import (
	"testing"
	"time"

	"github.com/lvaldez/tarotdesk/internal/availability"
)

func testCalendar(t *testing.T) *availability.Calendar {
	t.Helper()
	mon, err := availability.ParseDayWindows("09:00-12:00")
	if err != nil {
		t.Fatalf("ParseDayWindows: %v", err)
	}
	return availability.NewCalendar(time.UTC, map[time.Weekday][]availability.MinuteRange{
		time.Monday: mon,
	}, nil)
}

func TestParseLocalInterval(t *testing.T) {
	cal := testCalendar(t)

	start, end, err := parseLocalInterval(cal, "2026-09-07", "10:00", "11:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !start.Equal(time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", start)
	}
	if end.Sub(start) != time.Hour {
		t.Fatalf("unexpected duration %s", end.Sub(start))
	}
}

func TestParseLocalInterval_Invalid(t *testing.T) {
	cal := testCalendar(t)

	if _, _, err := parseLocalInterval(cal, "07-09-2026", "10:00", "11:00"); err == nil {
		t.Fatal("expected error for bad date format")
	}
	if _, _, err := parseLocalInterval(cal, "2026-09-07", "10am", "11:00"); err == nil {
		t.Fatal("expected error for bad start_time")
	}
	if _, _, err := parseLocalInterval(cal, "2026-09-07", "10:00", ""); err == nil {
		t.Fatal("expected error for missing end_time")
	}
}
