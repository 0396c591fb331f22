package calsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/trimtech/booking_backend/models"
)

type stubCalendarAPI struct {
	events    map[string]CalendarEvent
	getCalls  int
	listCalls int
	listFrom  time.Time
	listTo    time.Time
	listErr   error
}

func (s *stubCalendarAPI) CreateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubCalendarAPI) UpdateEvent(ctx context.Context, id string, ev CalendarEvent) error {
	return errors.New("not implemented")
}

func (s *stubCalendarAPI) DeleteEvent(ctx context.Context, id string) error {
	return errors.New("not implemented")
}

func (s *stubCalendarAPI) GetEvent(ctx context.Context, id string) (*CalendarEvent, error) {
	s.getCalls++
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &ev, nil
}

func (s *stubCalendarAPI) ListEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error) {
	s.listCalls++
	s.listFrom = from
	s.listTo = to
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]CalendarEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return out, nil
}

func TestLookupRemote_PrefetchHitSkipsPointFetch(t *testing.T) {
	api := &stubCalendarAPI{events: map[string]CalendarEvent{}}
	want := sampleEvent()
	want.ID = "evt-1"

	got, err := lookupRemote(context.Background(), api, "evt-1", map[string]*CalendarEvent{"evt-1": &want})
	if err != nil {
		t.Fatalf("lookupRemote: %v", err)
	}
	if got.ID != "evt-1" {
		t.Fatalf("event id = %s, want evt-1", got.ID)
	}
	if api.getCalls != 0 {
		t.Fatalf("point fetches = %d, want 0 on a prefetch hit", api.getCalls)
	}
}

func TestLookupRemote_MissFallsBackToPointFetch(t *testing.T) {
	ev := sampleEvent()
	ev.ID = "evt-2"
	api := &stubCalendarAPI{events: map[string]CalendarEvent{"evt-2": ev}}

	// A miss must not be treated as a remote deletion.
	got, err := lookupRemote(context.Background(), api, "evt-2", map[string]*CalendarEvent{})
	if err != nil {
		t.Fatalf("lookupRemote: %v", err)
	}
	if got.ID != "evt-2" || api.getCalls != 1 {
		t.Fatalf("got id=%s getCalls=%d, want evt-2 fetched once", got.ID, api.getCalls)
	}

	_, err = lookupRemote(context.Background(), api, "gone", nil)
	if !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("missing event must surface ErrEventNotFound, got %v", err)
	}
}

func TestPrefetchRemoteEvents_WindowCoversBatch(t *testing.T) {
	ev := sampleEvent()
	ev.ID = "evt-3"
	api := &stubCalendarAPI{events: map[string]CalendarEvent{"evt-3": ev}}

	base := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	reservations := []*models.Reservation{
		{StartTime: base.Add(3 * time.Hour), EndTime: base.Add(4 * time.Hour)},
		{StartTime: base, EndTime: base.Add(30 * time.Minute)},
		{StartTime: base.Add(time.Hour), EndTime: base.Add(90 * time.Minute)},
	}

	byId := prefetchRemoteEvents(context.Background(), api, reservations)
	if api.listCalls != 1 {
		t.Fatalf("list calls = %d, want 1", api.listCalls)
	}
	if !api.listFrom.Equal(base) || !api.listTo.Equal(base.Add(4*time.Hour)) {
		t.Fatalf("window = [%s, %s], want earliest start to latest end", api.listFrom, api.listTo)
	}
	if _, ok := byId["evt-3"]; !ok {
		t.Fatalf("prefetch map missing evt-3")
	}
}

func TestPrefetchRemoteEvents_ListingFailureDegradesToPointFetches(t *testing.T) {
	api := &stubCalendarAPI{listErr: errors.New("calendar api error 503")}
	reservations := []*models.Reservation{
		{StartTime: time.Now(), EndTime: time.Now().Add(30 * time.Minute)},
	}
	if byId := prefetchRemoteEvents(context.Background(), api, reservations); byId != nil {
		t.Fatalf("prefetch map = %v, want nil on listing failure", byId)
	}
	if byId := prefetchRemoteEvents(context.Background(), api, nil); byId != nil {
		t.Fatalf("prefetch map = %v, want nil for an empty batch", byId)
	}
}
