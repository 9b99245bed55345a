package wire

import (
	"errors"
	"strings"
	"testing"
	"time"

	errspkg "github.com/attendify/syncbridge/internal/pipeline/errors"
)

func TestEncodeUserMessageRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	rec := ChangeRecord{
		Action:    ActionUpdate,
		SubjectID: "42",
		Timestamp: ts,
		Fields: map[string]string{
			TagEmailAddress: "b@example.com",
			TagFirstName:    "Ada",
		},
		NestedGroup: map[string]string{
			TagBusinessName: "Ada BV",
			TagBTWNumber:    "BE0123456789",
		},
	}

	body, err := Encode(KindUserMessage, rec)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if !strings.HasPrefix(string(body), "<UserMessage>") {
		t.Fatalf("expected UserMessage root, got %s", body)
	}

	kind, decoded, err := Decode(body)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if kind != KindUserMessage {
		t.Fatalf("expected kind UserMessage, got %s", kind)
	}
	if decoded.Action != ActionUpdate || decoded.SubjectID != "42" {
		t.Fatalf("identity not preserved: %#v", decoded)
	}
	if !decoded.Timestamp.Equal(ts) {
		t.Fatalf("expected timestamp %v, got %v", ts, decoded.Timestamp)
	}
	if decoded.Fields[TagEmailAddress] != "b@example.com" || decoded.Fields[TagFirstName] != "Ada" {
		t.Fatalf("fields not preserved: %#v", decoded.Fields)
	}
	if decoded.NestedGroup[TagBusinessName] != "Ada BV" || decoded.NestedGroup[TagBTWNumber] != "BE0123456789" {
		t.Fatalf("business group not preserved: %#v", decoded.NestedGroup)
	}
	if _, ok := decoded.Fields[TagLastName]; ok {
		t.Fatal("absent fields must stay absent after decode")
	}
}

func TestEncodeOmitsEmptyBusinessGroup(t *testing.T) {
	body, err := Encode(KindUserMessage, ChangeRecord{
		Action:    ActionCreate,
		SubjectID: "7",
		Timestamp: time.Now(),
		Fields:    map[string]string{TagEmailAddress: "a@example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if strings.Contains(string(body), "<Business>") {
		t.Fatalf("expected no Business element, got %s", body)
	}
}

func TestEncodeEscapesMarkup(t *testing.T) {
	body, err := Encode(KindUserMessage, ChangeRecord{
		Action:    ActionUpdate,
		SubjectID: "7",
		Timestamp: time.Now(),
		Fields:    map[string]string{TagFirstName: "a<b&c"},
	})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if strings.Contains(string(body), "a<b") {
		t.Fatalf("markup characters must be escaped, got %s", body)
	}
	_, decoded, err := Decode(body)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if decoded.Fields[TagFirstName] != "a<b&c" {
		t.Fatalf("expected escaped value to round trip, got %q", decoded.Fields[TagFirstName])
	}
}

func TestEncodeRejectsInvalidRecords(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
		rec  ChangeRecord
	}{
		{"user message without subject", KindUserMessage, ChangeRecord{Action: ActionUpdate, Timestamp: time.Now()}},
		{"user message with register action", KindUserMessage, ChangeRecord{Action: ActionRegister, SubjectID: "1", Timestamp: time.Now()}},
		{"event without name", KindUpdateEvent, ChangeRecord{SubjectID: "ev-1"}},
		{"session without event", KindUpdateSession, ChangeRecord{SubjectID: "s-1", Fields: map[string]string{TagSessionName: "Talk"}}},
		{"log with unknown status", KindLog, ChangeRecord{Fields: map[string]string{TagServiceName: "frontend", TagStatus: "fatal"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.kind, tc.rec); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestEncodeUnknownKind(t *testing.T) {
	_, err := Encode(Kind("Bogus"), ChangeRecord{})
	if !errors.Is(err, errspkg.ErrUnknownMessageKind) {
		t.Fatalf("expected ErrUnknownMessageKind, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	for _, body := range []string{"", "not xml at all", "<UserMessage><UUID>1</UUID>"} {
		if _, _, err := Decode([]byte(body)); !errors.Is(err, errspkg.ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload for %q, got %v", body, err)
		}
	}
}

func TestDecodeUnknownRoot(t *testing.T) {
	_, _, err := Decode([]byte("<Mystery><UUID>1</UUID></Mystery>"))
	if !errors.Is(err, errspkg.ErrUnknownMessageKind) {
		t.Fatalf("expected ErrUnknownMessageKind, got %v", err)
	}
}

func TestDecodeInvalidTimestamp(t *testing.T) {
	body := []byte("<UserMessage><ActionType>UPDATE</ActionType><UUID>42</UUID><TimeOfAction>yesterday</TimeOfAction></UserMessage>")
	_, _, err := Decode(body)
	if !errors.Is(err, errspkg.ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestDecodeMissingActionIsIgnorable(t *testing.T) {
	for _, body := range []string{
		"<UserMessage><UUID>42</UUID></UserMessage>",
		"<UserMessage><ActionType>UPSERT</ActionType><UUID>42</UUID></UserMessage>",
	} {
		kind, rec, err := Decode([]byte(body))
		if err != nil {
			t.Fatalf("unexpected decode error for %q: %v", body, err)
		}
		if kind != KindUserMessage {
			t.Fatalf("expected UserMessage, got %s", kind)
		}
		if rec.Action != ActionIgnorable {
			t.Fatalf("expected ignorable action, got %q", rec.Action)
		}
	}
}

func TestDecodeUnknownElementsAreIgnored(t *testing.T) {
	body := []byte("<UserMessage><ActionType>DELETE</ActionType><UUID>42</UUID><Shoe>44</Shoe></UserMessage>")
	_, rec, err := Decode(body)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if rec.Action != ActionDelete || rec.SubjectID != "42" {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if len(rec.Fields) != 0 {
		t.Fatalf("unknown elements must not land in the field map: %#v", rec.Fields)
	}
}

func TestUpdateEventRoundTrip(t *testing.T) {
	rec := ChangeRecord{
		Action:    ActionRegister,
		SubjectID: "ev-9",
		Timestamp: time.Now(),
		Fields: map[string]string{
			TagEventName:     "Conference",
			TagStartDateTime: "2026-05-01T09:00:00Z",
			TagEndDateTime:   "2026-05-01T17:00:00Z",
			TagCapacity:      "100",
			TagEventType:     "default",
			TagEventLocation: "Onbekende locatie",
			TagOrganisator:   "onbekend",
		},
		Users: []string{"42", "43"},
	}
	body, err := Encode(KindUpdateEvent, rec)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	kind, decoded, err := Decode(body)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if kind != KindUpdateEvent {
		t.Fatalf("expected UpdateEvent, got %s", kind)
	}
	if decoded.SubjectID != "ev-9" || decoded.Fields[TagEventName] != "Conference" {
		t.Fatalf("identity not preserved: %#v", decoded)
	}
	if len(decoded.Users) != 2 || decoded.Users[0] != "42" || decoded.Users[1] != "43" {
		t.Fatalf("registered users not preserved: %#v", decoded.Users)
	}
}

func TestUpdateEventInvalidTimestamp(t *testing.T) {
	body := []byte("<UpdateEvent><EventUUID>ev-1</EventUUID><EventName>X</EventName><StartDateTime>soon</StartDateTime></UpdateEvent>")
	_, _, err := Decode(body)
	if !errors.Is(err, errspkg.ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestUpdateSessionRoundTrip(t *testing.T) {
	rec := ChangeRecord{
		Action:    ActionRegister,
		SubjectID: "s-1",
		Timestamp: time.Now(),
		Fields: map[string]string{
			TagEventUUID:     "ev-9",
			TagSessionName:   "Opening keynote",
			TagCapacity:      "50",
			TagStartDateTime: "2026-05-01T09:00:00Z",
			TagEndDateTime:   "2026-05-01T10:00:00Z",
			TagSessionType:   "talk",
		},
		Users:         []string{"ada@example.com"},
		GuestSpeakers: []string{"guest@example.com"},
	}
	body, err := Encode(KindUpdateSession, rec)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	kind, decoded, err := Decode(body)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if kind != KindUpdateSession {
		t.Fatalf("expected UpdateSession, got %s", kind)
	}
	if decoded.Fields[TagEventUUID] != "ev-9" || decoded.Fields[TagSessionName] != "Opening keynote" {
		t.Fatalf("session fields not preserved: %#v", decoded.Fields)
	}
	if len(decoded.Users) != 1 || decoded.Users[0] != "ada@example.com" {
		t.Fatalf("registered users not preserved: %#v", decoded.Users)
	}
	if len(decoded.GuestSpeakers) != 1 || decoded.GuestSpeakers[0] != "guest@example.com" {
		t.Fatalf("guest speakers not preserved: %#v", decoded.GuestSpeakers)
	}
}

func TestLogRoundTrip(t *testing.T) {
	body, err := Encode(KindLog, ChangeRecord{Fields: map[string]string{
		TagServiceName: "frontend",
		TagStatus:      "error",
		TagMessage:     "[2026-03-14T09:26:53Z] drain failed",
	}})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	kind, rec, err := Decode(body)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if kind != KindLog || rec.Fields[TagStatus] != "error" {
		t.Fatalf("unexpected log record: %s %#v", kind, rec.Fields)
	}
}

func TestHeartbeatEncode(t *testing.T) {
	body, err := Encode(KindHeartbeat, ChangeRecord{Fields: map[string]string{TagServiceName: "frontend"}})
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	want := "<Heartbeat><ServiceName>frontend</ServiceName></Heartbeat>"
	if string(body) != want {
		t.Fatalf("expected %s, got %s", want, body)
	}
}
