package wire

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	errspkg "github.com/attendify/syncbridge/internal/pipeline/errors"
)

// TimeLayout is the wire format for every timestamp field: ISO-8601 with an
// explicit offset or Z.
const TimeLayout = time.RFC3339

type businessXML struct {
	BusinessName       string `xml:"BusinessName,omitempty"`
	BusinessEmail      string `xml:"BusinessEmail,omitempty"`
	RealAddress        string `xml:"RealAddress,omitempty"`
	BTWNumber          string `xml:"BTWNumber,omitempty"`
	FacturationAddress string `xml:"FacturationAddress,omitempty"`
}

type userMessageXML struct {
	XMLName           xml.Name     `xml:"UserMessage"`
	ActionType        string       `xml:"ActionType"`
	UUID              string       `xml:"UUID"`
	TimeOfAction      string       `xml:"TimeOfAction"`
	EncryptedPassword string       `xml:"EncryptedPassword,omitempty"`
	EmailAddress      string       `xml:"EmailAddress,omitempty"`
	FirstName         string       `xml:"FirstName,omitempty"`
	LastName          string       `xml:"LastName,omitempty"`
	PhoneNumber       string       `xml:"PhoneNumber,omitempty"`
	Business          *businessXML `xml:"Business,omitempty"`
}

type registeredUserXML struct {
	UUID  string `xml:"UUID,omitempty"`
	Email string `xml:"email,omitempty"`
}

type registeredUsersXML struct {
	Users []registeredUserXML `xml:"User"`
}

type guestSpeakerXML struct {
	Email string `xml:"email"`
}

type guestSpeakersXML struct {
	Speakers []guestSpeakerXML `xml:"GuestSpeaker"`
}

type updateEventXML struct {
	XMLName          xml.Name            `xml:"UpdateEvent"`
	ActionType       string              `xml:"ActionType,omitempty"`
	EventUUID        string              `xml:"EventUUID"`
	EventName        string              `xml:"EventName"`
	StartDateTime    string              `xml:"StartDateTime"`
	EndDateTime      string              `xml:"EndDateTime"`
	Capacity         string              `xml:"Capacity"`
	EventType        string              `xml:"EventType"`
	EventDescription string              `xml:"EventDescription,omitempty"`
	EventLocation    string              `xml:"EventLocation,omitempty"`
	Organisator      string              `xml:"Organisator,omitempty"`
	RegisteredUsers  *registeredUsersXML `xml:"RegisteredUsers,omitempty"`
}

type updateSessionXML struct {
	XMLName            xml.Name            `xml:"UpdateSession"`
	ActionType         string              `xml:"ActionType,omitempty"`
	SessionUUID        string              `xml:"SessionUUID"`
	EventUUID          string              `xml:"EventUUID"`
	SessionName        string              `xml:"SessionName"`
	Capacity           string              `xml:"Capacity"`
	StartDateTime      string              `xml:"StartDateTime"`
	EndDateTime        string              `xml:"EndDateTime"`
	SessionType        string              `xml:"SessionType"`
	SessionDescription string              `xml:"SessionDescription,omitempty"`
	SessionLocation    string              `xml:"SessionLocation,omitempty"`
	GuestSpeakers      *guestSpeakersXML   `xml:"GuestSpeakers,omitempty"`
	RegisteredUsers    *registeredUsersXML `xml:"RegisteredUsers,omitempty"`
}

type logXML struct {
	XMLName     xml.Name `xml:"Log"`
	ServiceName string   `xml:"ServiceName"`
	Status      string   `xml:"Status"`
	Message     string   `xml:"Message"`
}

type heartbeatXML struct {
	XMLName     xml.Name `xml:"Heartbeat"`
	ServiceName string   `xml:"ServiceName"`
}

// Encode serializes the record as the XML document for the given kind. The
// top-level children come out in the canonical schema order and all text
// content is escaped.
func Encode(kind Kind, rec ChangeRecord) ([]byte, error) {
	if err := rec.Validate(kind); err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}

	var doc any
	switch kind {
	case KindUserMessage:
		doc = userMessageDoc(rec)
	case KindUpdateEvent:
		doc = updateEventDoc(rec)
	case KindUpdateSession:
		doc = updateSessionDoc(rec)
	case KindLog:
		doc = logXML{
			ServiceName: rec.Fields[TagServiceName],
			Status:      rec.Fields[TagStatus],
			Message:     rec.Fields[TagMessage],
		}
	case KindHeartbeat:
		doc = heartbeatXML{ServiceName: rec.Fields[TagServiceName]}
	default:
		return nil, errspkg.ErrUnknownMessageKind
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return body, nil
}

func userMessageDoc(rec ChangeRecord) userMessageXML {
	doc := userMessageXML{
		ActionType:        string(rec.Action),
		UUID:              rec.SubjectID,
		TimeOfAction:      rec.Timestamp.UTC().Format(TimeLayout),
		EncryptedPassword: rec.Fields[TagEncryptedPassword],
		EmailAddress:      rec.Fields[TagEmailAddress],
		FirstName:         rec.Fields[TagFirstName],
		LastName:          rec.Fields[TagLastName],
		PhoneNumber:       rec.Fields[TagPhoneNumber],
	}
	if len(rec.NestedGroup) > 0 {
		doc.Business = &businessXML{
			BusinessName:       rec.NestedGroup[TagBusinessName],
			BusinessEmail:      rec.NestedGroup[TagBusinessEmail],
			RealAddress:        rec.NestedGroup[TagRealAddress],
			BTWNumber:          rec.NestedGroup[TagBTWNumber],
			FacturationAddress: rec.NestedGroup[TagFacturationAddress],
		}
	}
	return doc
}

func updateEventDoc(rec ChangeRecord) updateEventXML {
	doc := updateEventXML{
		ActionType:       string(rec.Action),
		EventUUID:        rec.SubjectID,
		EventName:        rec.Fields[TagEventName],
		StartDateTime:    rec.Fields[TagStartDateTime],
		EndDateTime:      rec.Fields[TagEndDateTime],
		Capacity:         rec.Fields[TagCapacity],
		EventType:        rec.Fields[TagEventType],
		EventDescription: rec.Fields[TagEventDescription],
		EventLocation:    rec.Fields[TagEventLocation],
		Organisator:      rec.Fields[TagOrganisator],
	}
	if len(rec.Users) > 0 {
		group := &registeredUsersXML{}
		for _, token := range rec.Users {
			group.Users = append(group.Users, registeredUserXML{UUID: token})
		}
		doc.RegisteredUsers = group
	}
	return doc
}

func updateSessionDoc(rec ChangeRecord) updateSessionXML {
	doc := updateSessionXML{
		ActionType:         string(rec.Action),
		SessionUUID:        rec.SubjectID,
		EventUUID:          rec.Fields[TagEventUUID],
		SessionName:        rec.Fields[TagSessionName],
		Capacity:           rec.Fields[TagCapacity],
		StartDateTime:      rec.Fields[TagStartDateTime],
		EndDateTime:        rec.Fields[TagEndDateTime],
		SessionType:        rec.Fields[TagSessionType],
		SessionDescription: rec.Fields[TagSessionDescription],
		SessionLocation:    rec.Fields[TagSessionLocation],
	}
	if len(rec.GuestSpeakers) > 0 {
		group := &guestSpeakersXML{}
		for _, email := range rec.GuestSpeakers {
			group.Speakers = append(group.Speakers, guestSpeakerXML{Email: email})
		}
		doc.GuestSpeakers = group
	}
	if len(rec.Users) > 0 {
		group := &registeredUsersXML{}
		for _, email := range rec.Users {
			group.Users = append(group.Users, registeredUserXML{Email: email})
		}
		doc.RegisteredUsers = group
	}
	return doc
}

// Decode parses a message body into its kind and change record.
//
// A body that does not parse as a well-formed document fails with
// ErrMalformedPayload; an unparseable timestamp fails with
// ErrInvalidTimestamp. A missing or unrecognized ActionType is not an error:
// the record comes back with ActionIgnorable and the caller acknowledges and
// skips it.
func Decode(body []byte) (Kind, ChangeRecord, error) {
	root, err := rootElement(body)
	if err != nil {
		return "", ChangeRecord{}, err
	}

	switch Kind(root) {
	case KindUserMessage:
		rec, err := decodeUserMessage(body)
		return KindUserMessage, rec, err
	case KindUpdateEvent:
		rec, err := decodeUpdateEvent(body)
		return KindUpdateEvent, rec, err
	case KindUpdateSession:
		rec, err := decodeUpdateSession(body)
		return KindUpdateSession, rec, err
	case KindLog:
		rec, err := decodeLog(body)
		return KindLog, rec, err
	default:
		return "", ChangeRecord{}, fmt.Errorf("%w: %s", errspkg.ErrUnknownMessageKind, root)
	}
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", errspkg.ErrMalformedPayload, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func decodeUserMessage(body []byte) (ChangeRecord, error) {
	var doc userMessageXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return ChangeRecord{}, fmt.Errorf("%w: %v", errspkg.ErrMalformedPayload, err)
	}

	rec := ChangeRecord{
		Action:    parseAction(doc.ActionType),
		SubjectID: doc.UUID,
		Fields:    map[string]string{},
	}
	if doc.TimeOfAction != "" {
		ts, err := time.Parse(TimeLayout, doc.TimeOfAction)
		if err != nil {
			return ChangeRecord{}, fmt.Errorf("%w: TimeOfAction %q", errspkg.ErrInvalidTimestamp, doc.TimeOfAction)
		}
		rec.Timestamp = ts
	}

	putIfPresent(rec.Fields, TagEncryptedPassword, doc.EncryptedPassword)
	putIfPresent(rec.Fields, TagEmailAddress, doc.EmailAddress)
	putIfPresent(rec.Fields, TagFirstName, doc.FirstName)
	putIfPresent(rec.Fields, TagLastName, doc.LastName)
	putIfPresent(rec.Fields, TagPhoneNumber, doc.PhoneNumber)

	if doc.Business != nil {
		rec.NestedGroup = map[string]string{}
		putIfPresent(rec.NestedGroup, TagBusinessName, doc.Business.BusinessName)
		putIfPresent(rec.NestedGroup, TagBusinessEmail, doc.Business.BusinessEmail)
		putIfPresent(rec.NestedGroup, TagRealAddress, doc.Business.RealAddress)
		putIfPresent(rec.NestedGroup, TagBTWNumber, doc.Business.BTWNumber)
		putIfPresent(rec.NestedGroup, TagFacturationAddress, doc.Business.FacturationAddress)
	}
	return rec, nil
}

func decodeUpdateEvent(body []byte) (ChangeRecord, error) {
	var doc updateEventXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return ChangeRecord{}, fmt.Errorf("%w: %v", errspkg.ErrMalformedPayload, err)
	}

	rec := ChangeRecord{
		Action:    parseAction(doc.ActionType),
		SubjectID: doc.EventUUID,
		Fields:    map[string]string{},
	}
	for _, field := range []struct{ tag, value string }{
		{TagEventName, doc.EventName},
		{TagStartDateTime, doc.StartDateTime},
		{TagEndDateTime, doc.EndDateTime},
		{TagCapacity, doc.Capacity},
		{TagEventType, doc.EventType},
		{TagEventDescription, doc.EventDescription},
		{TagEventLocation, doc.EventLocation},
		{TagOrganisator, doc.Organisator},
	} {
		putIfPresent(rec.Fields, field.tag, field.value)
	}
	if err := checkTimestamps(rec.Fields); err != nil {
		return ChangeRecord{}, err
	}
	if doc.RegisteredUsers != nil {
		for _, u := range doc.RegisteredUsers.Users {
			rec.Users = append(rec.Users, u.UUID)
		}
	}
	return rec, nil
}

func decodeUpdateSession(body []byte) (ChangeRecord, error) {
	var doc updateSessionXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return ChangeRecord{}, fmt.Errorf("%w: %v", errspkg.ErrMalformedPayload, err)
	}

	rec := ChangeRecord{
		Action:    parseAction(doc.ActionType),
		SubjectID: doc.SessionUUID,
		Fields:    map[string]string{},
	}
	for _, field := range []struct{ tag, value string }{
		{TagEventUUID, doc.EventUUID},
		{TagSessionName, doc.SessionName},
		{TagCapacity, doc.Capacity},
		{TagStartDateTime, doc.StartDateTime},
		{TagEndDateTime, doc.EndDateTime},
		{TagSessionType, doc.SessionType},
		{TagSessionDescription, doc.SessionDescription},
		{TagSessionLocation, doc.SessionLocation},
	} {
		putIfPresent(rec.Fields, field.tag, field.value)
	}
	if err := checkTimestamps(rec.Fields); err != nil {
		return ChangeRecord{}, err
	}
	if doc.GuestSpeakers != nil {
		for _, s := range doc.GuestSpeakers.Speakers {
			rec.GuestSpeakers = append(rec.GuestSpeakers, s.Email)
		}
	}
	if doc.RegisteredUsers != nil {
		for _, u := range doc.RegisteredUsers.Users {
			rec.Users = append(rec.Users, u.Email)
		}
	}
	return rec, nil
}

func decodeLog(body []byte) (ChangeRecord, error) {
	var doc logXML
	if err := xml.Unmarshal(body, &doc); err != nil {
		return ChangeRecord{}, fmt.Errorf("%w: %v", errspkg.ErrMalformedPayload, err)
	}
	rec := ChangeRecord{Fields: map[string]string{}}
	putIfPresent(rec.Fields, TagServiceName, doc.ServiceName)
	putIfPresent(rec.Fields, TagStatus, doc.Status)
	putIfPresent(rec.Fields, TagMessage, doc.Message)
	return rec, nil
}

func parseAction(raw string) Action {
	switch Action(raw) {
	case ActionCreate, ActionUpdate, ActionDelete, ActionRegister:
		return Action(raw)
	default:
		return ActionIgnorable
	}
}

func checkTimestamps(fields map[string]string) error {
	for _, tag := range []string{TagStartDateTime, TagEndDateTime} {
		raw, ok := fields[tag]
		if !ok {
			continue
		}
		if _, err := time.Parse(TimeLayout, raw); err != nil {
			return fmt.Errorf("%w: %s %q", errspkg.ErrInvalidTimestamp, tag, raw)
		}
	}
	return nil
}

func putIfPresent(fields map[string]string, tag, value string) {
	if value != "" {
		fields[tag] = value
	}
}
