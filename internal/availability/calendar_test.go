package availability

import (
	"testing"
	"time"
)

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	mon, err := ParseDayWindows("09:00-12:00,16:00-20:00")
	if err != nil {
		t.Fatalf("ParseDayWindows: %v", err)
	}
	return NewCalendar(time.UTC, map[time.Weekday][]MinuteRange{
		time.Monday: mon,
	}, []string{"2026-09-14"})
}

func TestParseDayWindows(t *testing.T) {
	ranges, err := ParseDayWindows("09:00-12:00,16:00-20:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(ranges))
	}
	if ranges[0].StartMinute != 9*60 || ranges[0].EndMinute != 12*60 {
		t.Fatalf("unexpected first range %+v", ranges[0])
	}
	if ranges[1].StartMinute != 16*60 || ranges[1].EndMinute != 20*60 {
		t.Fatalf("unexpected second range %+v", ranges[1])
	}

	if _, err := ParseDayWindows("12:00-09:00"); err == nil {
		t.Fatal("expected error for inverted window")
	}
	if _, err := ParseDayWindows("9am-5pm"); err == nil {
		t.Fatal("expected error for non HH:MM clock")
	}

	empty, err := ParseDayWindows("  ")
	if err != nil || empty != nil {
		t.Fatalf("blank config should mean closed, got %v / %v", empty, err)
	}
}

func TestWindowsFor(t *testing.T) {
	cal := testCalendar(t)

	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	windows := cal.WindowsFor(monday)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if !windows[0].Start.Equal(monday.Add(9 * time.Hour)) {
		t.Fatalf("unexpected first window start %s", windows[0].Start)
	}
	if !windows[1].End.Equal(monday.Add(20 * time.Hour)) {
		t.Fatalf("unexpected second window end %s", windows[1].End)
	}

	tuesday := monday.AddDate(0, 0, 1)
	if got := cal.WindowsFor(tuesday); got != nil {
		t.Fatalf("unconfigured weekday should be closed, got %v", got)
	}

	blackout := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	if got := cal.WindowsFor(blackout); got != nil {
		t.Fatalf("blackout date should be closed, got %v", got)
	}
}

func TestContains(t *testing.T) {
	cal := testCalendar(t)
	monday := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	if !cal.Contains(monday.Add(9*time.Hour), monday.Add(10*time.Hour)) {
		t.Fatal("09:00-10:00 should be inside the morning window")
	}
	if !cal.Contains(monday.Add(11*time.Hour), monday.Add(12*time.Hour)) {
		t.Fatal("an interval ending exactly at window end is inside")
	}
	if cal.Contains(monday.Add(11*time.Hour+30*time.Minute), monday.Add(12*time.Hour+30*time.Minute)) {
		t.Fatal("an interval spilling past the window is outside")
	}
	if cal.Contains(monday.Add(13*time.Hour), monday.Add(14*time.Hour)) {
		t.Fatal("the midday gap is outside both windows")
	}
}
