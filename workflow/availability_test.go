package workflow

import (
	"testing"
	"time"
)

func day(hh, mm int) time.Time {
	return time.Date(2026, 3, 12, hh, mm, 0, 0, time.UTC)
}

func slotAt(t *testing.T, slots []TimeSlot, at time.Time) TimeSlot {
	t.Helper()
	for _, s := range slots {
		if s.Time.Equal(at) {
			return s
		}
	}
	t.Fatalf("no slot at %s", at.Format("15:04"))
	return TimeSlot{}
}

func TestComputeSlots_GridAndBusyBlocking(t *testing.T) {
	opening := day(9, 0)
	closing := day(18, 0)
	busy := []BusyInterval{{Start: day(10, 0), End: day(10, 45)}}
	now := day(0, 0)

	slots := ComputeSlots(opening, closing, 30, 30, busy, now)

	// 09:00 .. 17:30 at 30 minute steps.
	if len(slots) != 18 {
		t.Fatalf("expected 18 grid slots, got %d", len(slots))
	}
	if !slots[0].Time.Equal(opening) {
		t.Fatalf("grid must start at opening, got %s", slots[0].Time)
	}

	// The 10:00-10:45 booking blocks both starts its interval touches.
	for _, tc := range []struct {
		at   time.Time
		want bool
	}{
		{day(9, 0), true},
		{day(9, 30), true}, // ends exactly when the busy interval starts
		{day(10, 0), false},
		{day(10, 30), false}, // 10:30-11:00 overlaps 10:00-10:45
		{day(11, 0), true},
		{day(17, 30), true}, // ends exactly at closing
	} {
		got := slotAt(t, slots, tc.at).Available
		if got != tc.want {
			t.Errorf("slot %s: available = %v, want %v", tc.at.Format("15:04"), got, tc.want)
		}
	}
}

func TestComputeSlots_DurationMustFitBeforeClosing(t *testing.T) {
	slots := ComputeSlots(day(9, 0), day(18, 0), 30, 60, nil, day(0, 0))

	if got := slotAt(t, slots, day(17, 0)).Available; !got {
		t.Error("17:00 + 60min ends at closing and must be bookable")
	}
	if got := slotAt(t, slots, day(17, 30)).Available; got {
		t.Error("17:30 + 60min runs past closing and must not be bookable")
	}
}

func TestComputeSlots_LongerDurationWidensBusyShadow(t *testing.T) {
	busy := []BusyInterval{{Start: day(10, 0), End: day(10, 45)}}
	slots := ComputeSlots(day(9, 0), day(18, 0), 30, 60, busy, day(0, 0))

	// A 60 minute booking starting 09:30 would still be running at 10:00.
	if got := slotAt(t, slots, day(9, 30)).Available; got {
		t.Error("09:30 must be blocked for a 60min duration")
	}
	if got := slotAt(t, slots, day(9, 0)).Available; !got {
		t.Error("09:00-10:00 touches the busy start only at its endpoint and must stay free")
	}
}

func TestComputeSlots_PastStartsAreUnavailable(t *testing.T) {
	now := day(12, 15)
	slots := ComputeSlots(day(9, 0), day(18, 0), 30, 30, nil, now)

	if got := slotAt(t, slots, day(12, 0)).Available; got {
		t.Error("12:00 already passed and must not be bookable")
	}
	if got := slotAt(t, slots, day(12, 30)).Available; !got {
		t.Error("12:30 is in the future and must be bookable")
	}
}

func TestComputeSlots_ZeroDurationFallsBackToDefault(t *testing.T) {
	slots := ComputeSlots(day(9, 0), day(18, 0), 30, 0, nil, day(0, 0))

	// Default duration is 60, so the last bookable start is 17:00.
	if got := slotAt(t, slots, day(17, 30)).Available; got {
		t.Error("zero duration must fall back to the default, not zero-width bookings")
	}
	if got := slotAt(t, slots, day(17, 0)).Available; !got {
		t.Error("17:00 must be bookable with the default duration")
	}
}

func TestAvailableStartTimes_FiltersToBookable(t *testing.T) {
	busy := []BusyInterval{{Start: day(10, 0), End: day(10, 45)}}
	slots := ComputeSlots(day(9, 0), day(18, 0), 30, 30, busy, day(0, 0))

	starts := AvailableStartTimes(slots)
	if len(starts) != 16 {
		t.Fatalf("expected 16 bookable starts, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if !starts[i].After(starts[i-1]) {
			t.Fatal("start times must be chronologically ordered")
		}
	}
}
