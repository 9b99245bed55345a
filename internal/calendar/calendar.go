// Package calendar is the read-only event and session provider the
// registration flow consumes. Nothing in this repository mutates calendar
// data.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
)

// Event is one calendar event with its attendees and optional sessions.
type Event struct {
	ID           string
	Summary      string
	Description  string
	Location     string
	CreatorEmail string
	Start        time.Time
	End          time.Time
	Attendees    []string
	Sessions     []Session
}

// Session is a sub-event within an event.
type Session struct {
	ID            string
	Name          string
	Description   string
	Location      string
	Type          string
	Capacity      int
	Start         time.Time
	End           time.Time
	GuestSpeakers []string
}

// Source provides read-only calendar lookups.
type Source interface {
	GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error)
}

type eventJSON struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Creator     struct {
		Email string `json:"email"`
	} `json:"creator"`
	Start struct {
		DateTime time.Time `json:"dateTime"`
	} `json:"start"`
	End struct {
		DateTime time.Time `json:"dateTime"`
	} `json:"end"`
	Attendees []struct {
		Email string `json:"email"`
	} `json:"attendees"`
	Sessions []sessionJSON `json:"sessions"`
}

type sessionJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Type        string `json:"type"`
	Capacity    int    `json:"capacity"`
	Start       struct {
		DateTime time.Time `json:"dateTime"`
	} `json:"start"`
	End struct {
		DateTime time.Time `json:"dateTime"`
	} `json:"end"`
	GuestSpeakers []struct {
		Email string `json:"email"`
	} `json:"guestSpeakers"`
}

// Client fetches events from the calendar service's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetEvent fetches one event by calendar and event ID.
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("calendar response: %w", err)
	}
	var doc eventJSON
	if err := sonic.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("calendar response: %w", err)
	}

	event := &Event{
		ID:           doc.ID,
		Summary:      doc.Summary,
		Description:  doc.Description,
		Location:     doc.Location,
		CreatorEmail: doc.Creator.Email,
		Start:        doc.Start.DateTime,
		End:          doc.End.DateTime,
	}
	for _, a := range doc.Attendees {
		if a.Email != "" {
			event.Attendees = append(event.Attendees, a.Email)
		}
	}
	for _, s := range doc.Sessions {
		session := Session{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Location:    s.Location,
			Type:        s.Type,
			Capacity:    s.Capacity,
			Start:       s.Start.DateTime,
			End:         s.End.DateTime,
		}
		for _, g := range s.GuestSpeakers {
			if g.Email != "" {
				session.GuestSpeakers = append(session.GuestSpeakers, g.Email)
			}
		}
		event.Sessions = append(event.Sessions, session)
	}
	return event, nil
}
