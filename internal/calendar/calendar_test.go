package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const eventDoc = `{
	"id": "ev-9",
	"summary": "Conference",
	"description": "Annual edition",
	"location": "Antwerp",
	"creator": {"email": "organizer@x.com"},
	"start": {"dateTime": "2026-05-01T09:00:00Z"},
	"end": {"dateTime": "2026-05-01T17:00:00Z"},
	"attendees": [{"email": "a@x.com"}, {"email": ""}, {"email": "b@x.com"}],
	"sessions": [{
		"id": "s-1",
		"name": "Opening keynote",
		"type": "talk",
		"capacity": 50,
		"start": {"dateTime": "2026-05-01T09:00:00Z"},
		"end": {"dateTime": "2026-05-01T10:00:00Z"},
		"guestSpeakers": [{"email": "guest@x.com"}]
	}]
}`

func TestGetEvent(t *testing.T) {
	var requested string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventDoc))
	}))
	defer server.Close()

	event, err := NewClient(server.URL).GetEvent(context.Background(), "cal-1", "ev-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requested != "/calendars/cal-1/events/ev-9" {
		t.Fatalf("unexpected request path %q", requested)
	}
	if event.ID != "ev-9" || event.Summary != "Conference" {
		t.Fatalf("unexpected event: %#v", event)
	}
	if event.CreatorEmail != "organizer@x.com" {
		t.Fatalf("creator not parsed: %#v", event)
	}
	if len(event.Attendees) != 2 {
		t.Fatalf("empty attendee emails must be dropped: %#v", event.Attendees)
	}
	if len(event.Sessions) != 1 {
		t.Fatalf("expected one session, got %#v", event.Sessions)
	}
	s := event.Sessions[0]
	if s.Name != "Opening keynote" || s.Capacity != 50 || s.Type != "talk" {
		t.Fatalf("session not parsed: %#v", s)
	}
	if len(s.GuestSpeakers) != 1 || s.GuestSpeakers[0] != "guest@x.com" {
		t.Fatalf("guest speakers not parsed: %#v", s.GuestSpeakers)
	}
	if s.Start.IsZero() || event.Start.IsZero() {
		t.Fatal("timestamps not parsed")
	}
}

func TestGetEventNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such event", http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL).GetEvent(context.Background(), "cal-1", "missing"); err == nil {
		t.Fatal("expected an error for a missing event")
	}
}

func TestGetEventBadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	if _, err := NewClient(server.URL).GetEvent(context.Background(), "cal-1", "ev-9"); err == nil {
		t.Fatal("expected a parse error")
	}
}
