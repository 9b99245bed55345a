package wire

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	errspkg "github.com/attendify/syncbridge/internal/pipeline/errors"
)

// Action drives parsing and application of a change record.
type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionRegister Action = "REGISTER"

	// ActionIgnorable marks a decoded message whose ActionType was missing or
	// unrecognized. The consumer acknowledges and skips it; it is not an error.
	ActionIgnorable Action = ""
)

// Kind selects the root element and field schema of an encoded message.
type Kind string

const (
	KindUserMessage   Kind = "UserMessage"
	KindUpdateEvent   Kind = "UpdateEvent"
	KindUpdateSession Kind = "UpdateSession"
	KindLog           Kind = "Log"
	KindHeartbeat     Kind = "Heartbeat"
)

// ChangeRecord is the unit of synchronization. It is constructed, serialized,
// and published within one logical operation and never persisted standalone.
type ChangeRecord struct {
	Action    Action
	SubjectID string
	Timestamp time.Time

	// Fields maps leaf element names to values. For UPDATE only the deltas
	// are present.
	Fields map[string]string

	// NestedGroup carries the secondary entity (the Business group on user
	// messages), keyed by leaf element name.
	NestedGroup map[string]string

	// Users holds the RegisteredUsers group: subject tokens for UpdateEvent,
	// attendee email addresses for UpdateSession.
	Users []string

	// GuestSpeakers holds guest speaker email addresses on UpdateSession.
	GuestSpeakers []string
}

// User message leaf element names.
const (
	TagEncryptedPassword = "EncryptedPassword"
	TagEmailAddress      = "EmailAddress"
	TagFirstName         = "FirstName"
	TagLastName          = "LastName"
	TagPhoneNumber       = "PhoneNumber"

	TagBusinessName       = "BusinessName"
	TagBusinessEmail      = "BusinessEmail"
	TagRealAddress        = "RealAddress"
	TagBTWNumber          = "BTWNumber"
	TagFacturationAddress = "FacturationAddress"
)

// Event and session leaf element names.
const (
	TagEventUUID        = "EventUUID"
	TagEventName        = "EventName"
	TagEventDescription = "EventDescription"
	TagEventLocation    = "EventLocation"
	TagOrganisator      = "Organisator"
	TagStartDateTime    = "StartDateTime"
	TagEndDateTime      = "EndDateTime"
	TagCapacity         = "Capacity"
	TagEventType        = "EventType"

	TagSessionUUID        = "SessionUUID"
	TagSessionName        = "SessionName"
	TagSessionDescription = "SessionDescription"
	TagSessionLocation    = "SessionLocation"
	TagSessionType        = "SessionType"
)

// Log and heartbeat leaf element names.
const (
	TagServiceName = "ServiceName"
	TagStatus      = "Status"
	TagMessage     = "Message"
)

// UserFields lists the top-level user leaf fields in canonical wire order.
var UserFields = []string{
	TagEncryptedPassword,
	TagEmailAddress,
	TagFirstName,
	TagLastName,
	TagPhoneNumber,
}

// BusinessFields lists the Business group leaf fields in canonical wire order.
var BusinessFields = []string{
	TagBusinessName,
	TagBusinessEmail,
	TagRealAddress,
	TagBTWNumber,
	TagFacturationAddress,
}

var businessFieldSet = toSet(BusinessFields)

// IsBusinessField reports whether the tag belongs to the Business group.
func IsBusinessField(tag string) bool {
	_, ok := businessFieldSet[tag]
	return ok
}

func toSet(tags []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Validate checks the invariants a record must satisfy before encoding.
// Decode-side validation is deliberately lenient: absent leaf fields are
// skipped, only a missing ActionType downgrades the whole message.
func (r ChangeRecord) Validate(kind Kind) error {
	switch kind {
	case KindUserMessage:
		return validation.Errors{
			"ActionType":   validation.Validate(string(r.Action), validation.Required, validation.In(string(ActionCreate), string(ActionUpdate), string(ActionDelete))),
			"UUID":         validation.Validate(r.SubjectID, validation.Required),
			"TimeOfAction": validation.Validate(r.Timestamp, validation.Required),
		}.Filter()
	case KindUpdateEvent:
		return validation.Errors{
			"EventUUID": validation.Validate(r.SubjectID, validation.Required),
			"EventName": validation.Validate(r.Fields[TagEventName], validation.Required),
		}.Filter()
	case KindUpdateSession:
		return validation.Errors{
			"SessionUUID": validation.Validate(r.SubjectID, validation.Required),
			"EventUUID":   validation.Validate(r.Fields[TagEventUUID], validation.Required),
			"SessionName": validation.Validate(r.Fields[TagSessionName], validation.Required),
		}.Filter()
	case KindLog:
		return validation.Errors{
			"ServiceName": validation.Validate(r.Fields[TagServiceName], validation.Required),
			"Status":      validation.Validate(r.Fields[TagStatus], validation.Required, validation.In("success", "error", "info", "warning")),
		}.Filter()
	case KindHeartbeat:
		return validation.Errors{
			"ServiceName": validation.Validate(r.Fields[TagServiceName], validation.Required),
		}.Filter()
	}
	return errspkg.ErrUnknownMessageKind
}
