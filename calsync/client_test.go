package calsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) CalendarAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("CALENDAR_API_BASE_URL", srv.URL)
	t.Setenv("CALENDAR_API_KEY", "test-key")
	t.Setenv("CALENDAR_RATE_LIMIT_PER_MIN", "60000")

	api, err := NewCalendarClient()
	if err != nil {
		t.Fatalf("NewCalendarClient: %v", err)
	}
	return api
}

func TestCalendarClient_CreateEventReturnsId(t *testing.T) {
	api := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/events" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		var ev CalendarEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode body: %v", err)
		}
		ev.ID = "evt-42"
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(ev)
	}))

	id, err := api.CreateEvent(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if id != "evt-42" {
		t.Errorf("id = %q, want evt-42", id)
	}
}

func TestCalendarClient_GetEventMapsNotFound(t *testing.T) {
	api := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := api.GetEvent(context.Background(), "gone")
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestCalendarClient_DeleteAlreadyGoneIsSuccess(t *testing.T) {
	api := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	if err := api.DeleteEvent(context.Background(), "gone"); err != nil {
		t.Errorf("deleting an already-deleted event must succeed, got %v", err)
	}
}

func TestCalendarClient_ListEventsSendsWindow(t *testing.T) {
	from := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	api := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from"); got != from.Format(time.RFC3339) {
			t.Errorf("from = %q", got)
		}
		if got := r.URL.Query().Get("to"); got != to.Format(time.RFC3339) {
			t.Errorf("to = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []CalendarEvent{sampleEvent()},
		})
	}))

	events, err := api.ListEvents(context.Background(), from, to)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}
