package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinuteRange is a half-open [start, end) window in minutes since midnight.
type MinuteRange struct {
	StartMinute int
	EndMinute   int
}

// Calendar holds the per-weekday open windows and blackout dates for the
// single practitioner. It is built once at startup and read-only afterwards.
type Calendar struct {
	loc       *time.Location
	week      [7][]MinuteRange
	blackouts map[string]struct{}
}

func NewCalendar(loc *time.Location, week map[time.Weekday][]MinuteRange, blackouts []string) *Calendar {
	c := &Calendar{
		loc:       loc,
		blackouts: make(map[string]struct{}, len(blackouts)),
	}
	for wd, ranges := range week {
		c.week[int(wd)] = ranges
	}
	for _, d := range blackouts {
		d = strings.TrimSpace(d)
		if d != "" {
			c.blackouts[d] = struct{}{}
		}
	}
	return c
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// ParseDate interprets a YYYY-MM-DD string as midnight in the business time zone.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, c.loc)
}

// WindowsFor returns the open windows for the given date as concrete
// intervals in the business time zone, ordered by start. A blackout date or
// an unconfigured weekday yields no windows.
func (c *Calendar) WindowsFor(date time.Time) []Interval {
	day := date.In(c.loc)
	if _, blocked := c.blackouts[day.Format("2006-01-02")]; blocked {
		return nil
	}

	ranges := c.week[int(day.Weekday())]
	if len(ranges) == 0 {
		return nil
	}

	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.loc)
	windows := make([]Interval, 0, len(ranges))
	for _, r := range ranges {
		if r.EndMinute <= r.StartMinute {
			continue
		}
		windows = append(windows, Interval{
			Start: midnight.Add(time.Duration(r.StartMinute) * time.Minute),
			End:   midnight.Add(time.Duration(r.EndMinute) * time.Minute),
		})
	}
	return windows
}

// Contains reports whether [start, end) lies entirely inside one of the
// date's open windows.
func (c *Calendar) Contains(start, end time.Time) bool {
	for _, w := range c.WindowsFor(start) {
		if !start.Before(w.Start) && !end.After(w.End) {
			return true
		}
	}
	return false
}

// ParseDayWindows parses a weekday's hours config such as
// "09:00-12:00,16:00-20:00". An empty string means closed.
func ParseDayWindows(raw string) ([]MinuteRange, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var out []MinuteRange
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid hours window %q", part)
		}
		start, err := parseClockMinutes(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("invalid hours window %q: %w", part, err)
		}
		end, err := parseClockMinutes(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("invalid hours window %q: %w", part, err)
		}
		if end <= start {
			return nil, fmt.Errorf("invalid hours window %q: end not after start", part)
		}
		out = append(out, MinuteRange{StartMinute: start, EndMinute: end})
	}
	return out, nil
}

func parseClockMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	hm := strings.SplitN(s, ":", 2)
	if len(hm) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
