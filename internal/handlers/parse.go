package handlers

import (
	"fmt"
	"time"

	"github.com/lvaldez/tarotdesk/internal/availability"
)

// parseLocalInterval turns {date, start_time, end_time} wall-clock input into
// concrete instants in the business time zone.
func parseLocalInterval(cal *availability.Calendar, dateStr, startStr, endStr string) (time.Time, time.Time, error) {
	day, err := cal.ParseDate(dateStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", dateStr)
	}
	start, err := atClock(day, startStr, cal.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time %q, expected HH:MM", startStr)
	}
	end, err := atClock(day, endStr, cal.Location())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time %q, expected HH:MM", endStr)
	}
	return start, end, nil
}

func atClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
