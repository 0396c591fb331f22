package calsync

import (
	"testing"
	"time"
)

func sampleEvent() CalendarEvent {
	return CalendarEvent{
		Title:    "Ana - Haircut",
		StartUtc: time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC),
		EndUtc:   time.Date(2026, 3, 12, 10, 30, 0, 0, time.UTC),
		Location: "Calle Mayor 1",
	}
}

func TestContentHash_StableAcrossIrrelevantFields(t *testing.T) {
	a := sampleEvent()
	b := sampleEvent()
	b.ID = "remote-123"
	b.Description = "Booking with Marta"
	b.Attendees = []string{"ana@example.com"}

	if contentHash(a) != contentHash(b) {
		t.Error("id, description and attendees must not affect the content hash")
	}
}

func TestContentHash_SensitiveToTimeTitleLocation(t *testing.T) {
	base := contentHash(sampleEvent())

	moved := sampleEvent()
	moved.StartUtc = moved.StartUtc.Add(30 * time.Minute)
	if contentHash(moved) == base {
		t.Error("moving the start time must change the hash")
	}

	renamed := sampleEvent()
	renamed.Title = "Ana - Coloring"
	if contentHash(renamed) == base {
		t.Error("changing the title must change the hash")
	}

	relocated := sampleEvent()
	relocated.Location = "Calle Menor 2"
	if contentHash(relocated) == base {
		t.Error("changing the location must change the hash")
	}
}

func TestContentHash_NormalizesTimezone(t *testing.T) {
	utc := sampleEvent()

	madrid, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	local := sampleEvent()
	local.StartUtc = local.StartUtc.In(madrid)
	local.EndUtc = local.EndUtc.In(madrid)

	if contentHash(utc) != contentHash(local) {
		t.Error("the same instant in another zone must hash identically")
	}
}

func TestDecideSyncAction(t *testing.T) {
	cases := []struct {
		name                string
		local, remote, last string
		want                syncAction
	}{
		{"in sync", "h1", "h1", "h1", syncActionNone},
		{"local changed only", "h2", "h1", "h1", syncActionPushUpdate},
		{"remote changed only", "h1", "h2", "h1", syncActionPullRemote},
		{"both changed differently", "h2", "h3", "h1", syncActionConflict},
		{"both changed identically", "h2", "h2", "h1", syncActionConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := decideSyncAction(tc.local, tc.remote, tc.last); got != tc.want {
				t.Errorf("decideSyncAction(%q, %q, %q) = %d, want %d", tc.local, tc.remote, tc.last, got, tc.want)
			}
		})
	}
}

func TestDecideSyncAction_SecondRunIsNoOp(t *testing.T) {
	// After a push the synced hash equals the local hash; re-running must
	// decide to do nothing.
	local := contentHash(sampleEvent())
	if got := decideSyncAction(local, local, local); got != syncActionNone {
		t.Errorf("re-sync of an unchanged reservation must be a no-op, got %d", got)
	}
}
