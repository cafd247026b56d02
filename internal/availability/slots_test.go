package availability

import (
	"testing"
	"time"
)

func TestCandidates_BackToBack(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, loc) // a Monday
	windows := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(12 * time.Hour)},
	}

	candidates := Candidates(windows, time.Hour, time.Hour, day)
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	wantStarts := []time.Time{
		day.Add(9 * time.Hour),
		day.Add(10 * time.Hour),
		day.Add(11 * time.Hour),
	}
	for i, want := range wantStarts {
		if !candidates[i].Start.Equal(want) {
			t.Fatalf("candidate %d: expected start %s, got %s", i, want, candidates[i].Start)
		}
		if !candidates[i].End.Equal(want.Add(time.Hour)) {
			t.Fatalf("candidate %d: expected end %s, got %s", i, want.Add(time.Hour), candidates[i].End)
		}
	}
}

func TestCandidates_SkipsPast(t *testing.T) {
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	windows := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(12 * time.Hour)},
	}

	now := day.Add(10*time.Hour + 30*time.Minute)
	candidates := Candidates(windows, time.Hour, time.Hour, now)
	// 09:00 and 10:00 already started; only 11:00 remains.
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if !candidates[0].Start.Equal(day.Add(11 * time.Hour)) {
		t.Fatalf("expected 11:00 start, got %s", candidates[0].Start)
	}
}

func TestCandidates_DurationMustFitWindow(t *testing.T) {
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	windows := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
	}

	candidates := Candidates(windows, time.Hour, time.Hour, day)
	// 10:00-11:00 would spill past the window end.
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
}

func TestMarkAvailability_BookedSlotBlocked(t *testing.T) {
	day := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	windows := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(12 * time.Hour)},
	}
	candidates := Candidates(windows, time.Hour, time.Hour, day)

	busy := []Interval{
		{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)},
	}
	slots := MarkAvailability(candidates, busy)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if !slots[0].Available || slots[2].Available == false {
		t.Fatal("unbooked slots should stay available")
	}
	if slots[1].Available {
		t.Fatal("expected 10:00-11:00 to be unavailable")
	}
}

func TestOverlaps_HalfOpen(t *testing.T) {
	base := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(30 * time.Minute)}
	b := Interval{Start: base.Add(30 * time.Minute), End: base.Add(time.Hour)}

	// Touching endpoints do not overlap; back-to-back slots are both bookable.
	if Overlaps(a, b) || Overlaps(b, a) {
		t.Fatal("adjacent intervals must not overlap")
	}

	c := Interval{Start: base.Add(29 * time.Minute), End: base.Add(45 * time.Minute)}
	if !Overlaps(a, c) || !Overlaps(c, a) {
		t.Fatal("intersecting intervals must overlap")
	}

	if !Overlaps(a, a) {
		t.Fatal("an interval overlaps itself")
	}
}
