// Package registration captures a user's event and session sign-ups: it
// persists the registration rows locally and fans the corresponding
// UpdateEvent and UpdateSession messages out to the downstream systems.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/attendify/syncbridge/internal/broker"
	"github.com/attendify/syncbridge/internal/calendar"
	errspkg "github.com/attendify/syncbridge/internal/pipeline/errors"
	loggingpkg "github.com/attendify/syncbridge/internal/pipeline/logging"
	metricspkg "github.com/attendify/syncbridge/internal/pipeline/metrics"
	"github.com/attendify/syncbridge/internal/store"
	"github.com/attendify/syncbridge/internal/wire"
)

// ErrAlreadyRegistered signals that the (user, event) pair is registered
// already. The caller may surface it; nothing was inserted or published.
var ErrAlreadyRegistered = errors.New("syncbridge: user already registered for event")

// Fallbacks mirroring what the legacy system published when calendar data
// was incomplete.
const (
	defaultCapacity  = 100
	defaultEventType = "default"
	unknownLocation  = "Onbekende locatie"
	unknownOrganizer = "onbekend"
)

// Publisher is the broker surface the registration flow needs.
type Publisher interface {
	Publish(ctx context.Context, target broker.Target, body []byte) error
}

// Registrar persists registrations and publishes the fan-out messages.
type Registrar struct {
	store      store.Store
	publisher  Publisher
	calendar   calendar.Source
	calendarID string
	logger     loggingpkg.ServiceLogger
	metrics    *metricspkg.PipelineMetrics
	now        func() time.Time
}

// NewRegistrar wires the registration flow. The calendar source supplies the
// event and session details included in the published messages.
func NewRegistrar(st store.Store, pub Publisher, cal calendar.Source, calendarID string, log loggingpkg.ServiceLogger, met *metricspkg.PipelineMetrics) (*Registrar, error) {
	if st == nil {
		return nil, errspkg.ErrStoreRequired
	}
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cal == nil {
		return nil, errspkg.ErrCalendarRequired
	}
	return &Registrar{
		store:      st,
		publisher:  pub,
		calendar:   cal,
		calendarID: calendarID,
		logger:     log,
		metrics:    met,
		now:        time.Now,
	}, nil
}

// Register records the user's registration for the event and the selected
// sessions, then publishes one UpdateEvent and one UpdateSession per session.
//
// The returned error reflects only the local persistence outcome: publish and
// calendar failures are logged and never block the registration.
func (r *Registrar) Register(ctx context.Context, userID, eventID string, sessionIDs []string) error {
	if userID == "" {
		return errspkg.ErrSubjectIDRequired
	}

	exists, err := r.store.ExistsRegistration(ctx, userID, eventID)
	if err != nil {
		return fmt.Errorf("checking registration: %w", err)
	}
	if exists {
		return ErrAlreadyRegistered
	}
	if err := r.store.InsertRegistration(ctx, userID, eventID); err != nil {
		return fmt.Errorf("inserting registration: %w", err)
	}

	newSessions := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		taken, err := r.store.ExistsSessionRegistration(ctx, userID, eventID, sessionID)
		if err != nil {
			return fmt.Errorf("checking session registration: %w", err)
		}
		if taken {
			continue
		}
		if err := r.store.InsertSessionRegistration(ctx, userID, eventID, sessionID); err != nil {
			return fmt.Errorf("inserting session registration: %w", err)
		}
		newSessions = append(newSessions, sessionID)
	}

	event, err := r.calendar.GetEvent(ctx, r.calendarID, eventID)
	if err != nil {
		r.logger.Error("calendar lookup failed, registration stored without publish", err, loggingpkg.LogFields{
			"user_id":  userID,
			"event_id": eventID,
		})
		return nil
	}

	r.publishEvent(ctx, userID, eventID, event)
	for _, sessionID := range newSessions {
		r.publishSession(ctx, userID, eventID, sessionID, event)
	}
	return nil
}

// publishEvent fans the UpdateEvent out to every event target. The
// RegisteredUsers group unions the submitting user's token with the tokens of
// attendees the local store knows; unknown attendees are silently excluded.
func (r *Registrar) publishEvent(ctx context.Context, userID, eventID string, event *calendar.Event) {
	tokens := []string{userID}
	for _, email := range event.Attendees {
		subjectID, err := r.store.FindSubjectIDByEmail(ctx, email)
		if err != nil || subjectID == userID {
			continue
		}
		tokens = append(tokens, subjectID)
	}

	rec := wire.ChangeRecord{
		Action:    wire.ActionRegister,
		SubjectID: eventID,
		Timestamp: r.now().UTC(),
		Fields: map[string]string{
			wire.TagEventName:     event.Summary,
			wire.TagStartDateTime: event.Start.Format(wire.TimeLayout),
			wire.TagEndDateTime:   event.End.Format(wire.TimeLayout),
			wire.TagCapacity:      strconv.Itoa(defaultCapacity),
			wire.TagEventType:     defaultEventType,
		},
		Users: tokens,
	}
	putOr(rec.Fields, wire.TagEventDescription, event.Description, "")
	putOr(rec.Fields, wire.TagEventLocation, event.Location, unknownLocation)
	putOr(rec.Fields, wire.TagOrganisator, event.CreatorEmail, unknownOrganizer)

	r.fanOut(ctx, wire.KindUpdateEvent, rec, broker.EventUpdateTargets)
}

func (r *Registrar) publishSession(ctx context.Context, userID, eventID, sessionID string, event *calendar.Event) {
	session, ok := findSession(event, sessionID)
	if !ok {
		r.logger.Error("session not found in calendar event", nil, loggingpkg.LogFields{
			"event_id":   eventID,
			"session_id": sessionID,
		})
		return
	}

	rec := wire.ChangeRecord{
		Action:    wire.ActionRegister,
		SubjectID: sessionID,
		Timestamp: r.now().UTC(),
		Fields: map[string]string{
			wire.TagEventUUID:     eventID,
			wire.TagSessionName:   session.Name,
			wire.TagCapacity:      strconv.Itoa(capacityOr(session.Capacity)),
			wire.TagStartDateTime: session.Start.Format(wire.TimeLayout),
			wire.TagEndDateTime:   session.End.Format(wire.TimeLayout),
			wire.TagSessionType:   sessionTypeOr(session.Type),
		},
		GuestSpeakers: session.GuestSpeakers,
	}
	putOr(rec.Fields, wire.TagSessionDescription, session.Description, "")
	putOr(rec.Fields, wire.TagSessionLocation, session.Location, "")

	if email := r.userEmail(ctx, userID); email != "" {
		rec.Users = []string{email}
	}

	r.fanOut(ctx, wire.KindUpdateSession, rec, broker.SessionUpdateTargets)
}

// fanOut publishes to every target independently; one target's failure does
// not block the others.
func (r *Registrar) fanOut(ctx context.Context, kind wire.Kind, rec wire.ChangeRecord, targets []broker.Target) {
	body, err := wire.Encode(kind, rec)
	if err != nil {
		r.logger.Error("encoding registration message", err, loggingpkg.LogFields{
			"kind":       string(kind),
			"subject_id": rec.SubjectID,
		})
		return
	}
	for _, target := range targets {
		if err := r.publisher.Publish(ctx, target, body); err != nil {
			r.metrics.PublishFailed(target.Exchange, target.RoutingKey)
			r.logger.Error("publishing registration message", err, loggingpkg.LogFields{
				"exchange":    target.Exchange,
				"routing_key": target.RoutingKey,
				"subject_id":  rec.SubjectID,
			})
			continue
		}
		r.metrics.Published(target.Exchange, target.RoutingKey)
	}
}

func (r *Registrar) userEmail(ctx context.Context, userID string) string {
	rec, err := r.store.FindBySubjectID(ctx, userID)
	if err != nil {
		return ""
	}
	return rec.Fields[wire.TagEmailAddress]
}

func findSession(event *calendar.Event, sessionID string) (calendar.Session, bool) {
	for _, s := range event.Sessions {
		if s.ID == sessionID {
			return s, true
		}
	}
	return calendar.Session{}, false
}

func putOr(fields map[string]string, tag, value, fallback string) {
	if value != "" {
		fields[tag] = value
	} else if fallback != "" {
		fields[tag] = fallback
	}
}

func capacityOr(capacity int) int {
	if capacity > 0 {
		return capacity
	}
	return defaultCapacity
}

func sessionTypeOr(kind string) string {
	if kind != "" {
		return kind
	}
	return defaultEventType
}
