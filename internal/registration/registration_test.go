package registration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/attendify/syncbridge/internal/broker"
	"github.com/attendify/syncbridge/internal/calendar"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	metricspkg "github.com/attendify/syncbridge/internal/pipeline/metrics"
	"github.com/attendify/syncbridge/internal/store"
	"github.com/attendify/syncbridge/internal/wire"
)

type published struct {
	target broker.Target
	body   []byte
}

type fakePublisher struct {
	published []published
	failOn    map[string]error
}

func (f *fakePublisher) Publish(_ context.Context, target broker.Target, body []byte) error {
	if err, ok := f.failOn[target.RoutingKey]; ok {
		return err
	}
	f.published = append(f.published, published{target: target, body: body})
	return nil
}

func (f *fakePublisher) byKind(t *testing.T, kind wire.Kind) []wire.ChangeRecord {
	t.Helper()
	var out []wire.ChangeRecord
	for _, msg := range f.published {
		k, rec, err := wire.Decode(msg.body)
		if err != nil {
			t.Fatalf("published body does not decode: %v", err)
		}
		if k == kind {
			out = append(out, rec)
		}
	}
	return out
}

type fakeCalendar struct {
	event *calendar.Event
	err   error
}

func (f *fakeCalendar) GetEvent(context.Context, string, string) (*calendar.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.event, nil
}

func testEvent() *calendar.Event {
	return &calendar.Event{
		ID:           "ev-9",
		Summary:      "Conference",
		Description:  "Annual edition",
		Location:     "Antwerp",
		CreatorEmail: "organizer@x.com",
		Start:        time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC),
		Attendees:    []string{"b@x.com", "c@x.com"},
		Sessions: []calendar.Session{
			{
				ID:            "s-1",
				Name:          "Opening keynote",
				Start:         time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
				End:           time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
				Capacity:      50,
				Type:          "talk",
				GuestSpeakers: []string{"guest@x.com"},
			},
		},
	}
}

func newTestRegistrar(t *testing.T, st store.Store, pub Publisher, cal calendar.Source) *Registrar {
	t.Helper()
	logger := loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	r, err := NewRegistrar(st, pub, cal, "cal-1", logger, metricspkg.New(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("building registrar: %v", err)
	}
	return r
}

func seedUser(t *testing.T, st store.Store, subjectID, email string) {
	t.Helper()
	if err := st.CreateRecord(context.Background(), subjectID, map[string]string{wire.TagEmailAddress: email}); err != nil {
		t.Fatalf("seeding user %s: %v", subjectID, err)
	}
}

func TestRegisterPersistsAndPublishes(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "42", "a@x.com")
	seedUser(t, st, "43", "b@x.com")
	pub := &fakePublisher{}
	r := newTestRegistrar(t, st, pub, &fakeCalendar{event: testEvent()})

	if err := r.Register(context.Background(), "42", "ev-9", []string{"s-1"}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	exists, err := st.ExistsRegistration(context.Background(), "42", "ev-9")
	if err != nil || !exists {
		t.Fatalf("expected registration row, exists=%v err=%v", exists, err)
	}
	taken, err := st.ExistsSessionRegistration(context.Background(), "42", "ev-9", "s-1")
	if err != nil || !taken {
		t.Fatalf("expected session registration row, exists=%v err=%v", taken, err)
	}

	events := pub.byKind(t, wire.KindUpdateEvent)
	if len(events) != len(broker.EventUpdateTargets) {
		t.Fatalf("expected %d UpdateEvent messages, got %d", len(broker.EventUpdateTargets), len(events))
	}
	ev := events[0]
	if ev.SubjectID != "ev-9" || ev.Action != wire.ActionRegister {
		t.Fatalf("unexpected event record: %#v", ev)
	}
	if ev.Fields[wire.TagEventName] != "Conference" || ev.Fields[wire.TagEventLocation] != "Antwerp" {
		t.Fatalf("calendar details missing: %#v", ev.Fields)
	}
	// Submitting user plus the one attendee the store knows. c@x.com is
	// unknown locally and stays out.
	if len(ev.Users) != 2 || ev.Users[0] != "42" || ev.Users[1] != "43" {
		t.Fatalf("unexpected registered users: %#v", ev.Users)
	}

	sessions := pub.byKind(t, wire.KindUpdateSession)
	if len(sessions) != len(broker.SessionUpdateTargets) {
		t.Fatalf("expected %d UpdateSession messages, got %d", len(broker.SessionUpdateTargets), len(sessions))
	}
	se := sessions[0]
	if se.SubjectID != "s-1" || se.Fields[wire.TagEventUUID] != "ev-9" {
		t.Fatalf("unexpected session record: %#v", se)
	}
	if se.Fields[wire.TagSessionName] != "Opening keynote" || se.Fields[wire.TagCapacity] != "50" {
		t.Fatalf("session details missing: %#v", se.Fields)
	}
	if len(se.Users) != 1 || se.Users[0] != "a@x.com" {
		t.Fatalf("expected submitting user's email, got %#v", se.Users)
	}
	if len(se.GuestSpeakers) != 1 || se.GuestSpeakers[0] != "guest@x.com" {
		t.Fatalf("expected guest speakers, got %#v", se.GuestSpeakers)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "42", "a@x.com")
	pub := &fakePublisher{}
	r := newTestRegistrar(t, st, pub, &fakeCalendar{event: testEvent()})

	if err := r.Register(context.Background(), "42", "ev-9", nil); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := r.Register(context.Background(), "42", "ev-9", nil)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterSkipsAlreadyTakenSessions(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "42", "a@x.com")
	if err := st.InsertSessionRegistration(context.Background(), "42", "ev-9", "s-1"); err != nil {
		t.Fatalf("seeding session registration: %v", err)
	}
	pub := &fakePublisher{}
	r := newTestRegistrar(t, st, pub, &fakeCalendar{event: testEvent()})

	if err := r.Register(context.Background(), "42", "ev-9", []string{"s-1"}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if got := len(pub.byKind(t, wire.KindUpdateSession)); got != 0 {
		t.Fatalf("already taken sessions must not republish, got %d messages", got)
	}
	if got := len(pub.byKind(t, wire.KindUpdateEvent)); got != len(broker.EventUpdateTargets) {
		t.Fatalf("event fan-out must still happen, got %d messages", got)
	}
}

func TestRegisterSurvivesCalendarOutage(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "42", "a@x.com")
	pub := &fakePublisher{}
	r := newTestRegistrar(t, st, pub, &fakeCalendar{err: errors.New("calendar down")})

	if err := r.Register(context.Background(), "42", "ev-9", []string{"s-1"}); err != nil {
		t.Fatalf("calendar outage must not fail the registration, got %v", err)
	}
	exists, _ := st.ExistsRegistration(context.Background(), "42", "ev-9")
	if !exists {
		t.Fatal("registration row must be stored despite the outage")
	}
	if len(pub.published) != 0 {
		t.Fatalf("nothing should publish without calendar data, got %d messages", len(pub.published))
	}
}

func TestRegisterPublishFailureIsIsolated(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "42", "a@x.com")
	pub := &fakePublisher{failOn: map[string]error{broker.EventUpdateTargets[0].RoutingKey: errors.New("broker down")}}
	r := newTestRegistrar(t, st, pub, &fakeCalendar{event: testEvent()})

	if err := r.Register(context.Background(), "42", "ev-9", nil); err != nil {
		t.Fatalf("publish failures must not surface, got %v", err)
	}
	if got := len(pub.byKind(t, wire.KindUpdateEvent)); got != len(broker.EventUpdateTargets)-1 {
		t.Fatalf("remaining targets must still publish, got %d", got)
	}
}

func TestRegisterUnknownSessionSkipsPublish(t *testing.T) {
	st := store.NewMemoryStore()
	seedUser(t, st, "42", "a@x.com")
	pub := &fakePublisher{}
	r := newTestRegistrar(t, st, pub, &fakeCalendar{event: testEvent()})

	if err := r.Register(context.Background(), "42", "ev-9", []string{"s-unknown"}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if got := len(pub.byKind(t, wire.KindUpdateSession)); got != 0 {
		t.Fatalf("sessions missing from the calendar must not publish, got %d", got)
	}
}

func TestRegisterRequiresUser(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &fakePublisher{}
	r := newTestRegistrar(t, st, pub, &fakeCalendar{event: testEvent()})

	if err := r.Register(context.Background(), "", "ev-9", nil); err == nil {
		t.Fatal("expected an error for a missing user id")
	}
}

func TestNewRegistrarGuards(t *testing.T) {
	logger := loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	met := metricspkg.New(prometheus.NewRegistry())
	cal := &fakeCalendar{event: testEvent()}
	st := store.NewMemoryStore()
	pub := &fakePublisher{}

	if _, err := NewRegistrar(nil, pub, cal, "cal-1", logger, met); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewRegistrar(st, nil, cal, "cal-1", logger, met); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if _, err := NewRegistrar(st, pub, nil, "cal-1", logger, met); err == nil {
		t.Fatal("expected error for nil calendar source")
	}
}
