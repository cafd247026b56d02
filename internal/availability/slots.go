package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a candidate bookable interval plus its availability flag. Slots are
// never persisted; they are recomputed from appointment rows per request.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// Overlaps implements the half-open overlap test: [a.Start,a.End) overlaps
// [b.Start,b.End) iff a.Start < b.End && b.Start < a.End. Touching endpoints
// do not overlap, so back-to-back slots are both bookable.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Candidates expands open windows into candidate slot intervals of the given
// duration, advancing by step within each window. Slots starting before now
// are never offered, regardless of booking status.
func Candidates(windows []Interval, duration, step time.Duration, now time.Time) []Interval {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var out []Interval
	for _, w := range windows {
		if !w.End.After(w.Start) {
			continue
		}
		for t := w.Start; !t.Add(duration).After(w.End); t = t.Add(step) {
			if t.Before(now) {
				continue
			}
			out = append(out, Interval{Start: t, End: t.Add(duration)})
		}
	}
	return out
}

// MarkAvailability flags each candidate as available iff no busy interval
// overlaps it. Candidate order is preserved.
func MarkAvailability(candidates []Interval, busy []Interval) []Slot {
	slots := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		slots = append(slots, Slot{
			Start:     c.Start,
			End:       c.End,
			Available: !overlapsAny(c, busy),
		})
	}
	return slots
}

func overlapsAny(c Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(c, b) {
			return true
		}
	}
	return false
}
