package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dukerupert/eventdesk/internal/model"
)

func (c *Client) listEvents(ctx context.Context, op, path string) ([]model.Event, error) {
	var events []model.Event
	if err := c.getJSON(ctx, op, path, &events); err != nil {
		return nil, err
	}
	if err := validateAll(op, events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

// ListEvents returns every Confirmed event.
func (c *Client) ListEvents(ctx context.Context) ([]model.Event, error) {
	return c.listEvents(ctx, "list_events", "/api/events/all")
}

func (c *Client) ListHosted(ctx context.Context) ([]model.Event, error) {
	return c.listEvents(ctx, "list_hosted", "/api/events/hosted")
}

func (c *Client) ListVolunteered(ctx context.Context) ([]model.Event, error) {
	return c.listEvents(ctx, "list_volunteered", "/api/events/volunteered")
}

// ListAttending returns upcoming events the caller is registered for.
func (c *Client) ListAttending(ctx context.Context) ([]model.Event, error) {
	return c.listEvents(ctx, "list_attending", "/api/events/upcoming_participant")
}

func (c *Client) ListAttended(ctx context.Context) ([]model.Event, error) {
	return c.listEvents(ctx, "list_attended", "/api/events/attended")
}

// ListPendingEvents returns the events awaiting approval. Events without a
// status are taken to be Pending, anything else is a shape mismatch.
func (c *Client) ListPendingEvents(ctx context.Context) ([]model.Event, error) {
	const op = "list_pending"
	events, err := c.listEvents(ctx, op, "/api/events/pending")
	if err != nil {
		return nil, err
	}
	for i := range events {
		switch events[i].Status {
		case "":
			events[i].Status = model.StatusPending
		case model.StatusPending:
		default:
			return nil, fmt.Errorf("%s: %w: event %d has status %s", op, ErrMalformedResponse, events[i].ID, events[i].Status)
		}
	}
	return events, nil
}

func (c *Client) EventDetails(ctx context.Context, id int64) (model.Event, error) {
	const op = "event_details"
	var e model.Event
	if err := c.getJSON(ctx, op, fmt.Sprintf("/api/events/details/%d", id), &e); err != nil {
		return model.Event{}, err
	}
	if err := e.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return e, nil
}

func (c *Client) CreateEvent(ctx context.Context, in model.EventInput) (model.Event, error) {
	const op = "create_event"
	var e model.Event
	if err := c.sendJSON(ctx, op, http.MethodPost, "/api/events/create", in, &e); err != nil {
		return model.Event{}, err
	}
	if err := e.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return e, nil
}

// UpdateEvent replaces the event's fields. The service puts it back into
// Pending.
func (c *Client) UpdateEvent(ctx context.Context, id int64, in model.EventInput) (model.Event, error) {
	const op = "update_event"
	var e model.Event
	if err := c.sendJSON(ctx, op, http.MethodPut, fmt.Sprintf("/api/events/update/%d", id), in, &e); err != nil {
		return model.Event{}, err
	}
	if err := e.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return e, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, "delete_event", http.MethodDelete, fmt.Sprintf("/api/events/delete/%d", id), nil, nil)
}

// EventAvailability asks whether the pending event's slot is free. The body
// is plain text; a JSON-quoted string is accepted too.
func (c *Client) EventAvailability(ctx context.Context, id int64) (model.Availability, error) {
	const op = "event_availability"
	resp, err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/api/events/availability/%d", id), nil, true)
	if err != nil {
		return model.Unavailable, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return model.Unavailable, fmt.Errorf("%s: read body: %w", op, err)
	}
	body := strings.TrimSpace(string(b))
	if strings.HasPrefix(body, `"`) {
		var s string
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			return model.Unavailable, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
		}
		body = s
	}
	return model.ParseAvailability(body), nil
}

type decisionRequest struct {
	Status model.EventStatus `json:"status"`
}

// DecideEvent moves a pending event to Confirmed or Rejected.
func (c *Client) DecideEvent(ctx context.Context, id int64, outcome model.EventStatus) error {
	return c.sendJSON(ctx, "decide_event", http.MethodPost, fmt.Sprintf("/api/events/approve/%d", id), decisionRequest{Status: outcome}, nil)
}

// RegisterForEvent registers the caller as a participant or volunteer.
func (c *Client) RegisterForEvent(ctx context.Context, id int64, kind model.RegistrationKind) error {
	var path string
	switch kind {
	case model.KindParticipant:
		path = fmt.Sprintf("/api/events/register_participant/%d", id)
	case model.KindVolunteer:
		path = fmt.Sprintf("/api/events/register_volunteer/%d", id)
	default:
		return fmt.Errorf("register: unknown registration kind %q", kind)
	}
	return c.sendJSON(ctx, "register_"+string(kind), http.MethodPost, path, nil, nil)
}

func (c *Client) MarkAttendance(ctx context.Context, eventID, userID int64) error {
	return c.sendJSON(ctx, "mark_attendance", http.MethodPost, fmt.Sprintf("/api/events/%d/attendance/%d", eventID, userID), nil, nil)
}

func (c *Client) ParticipantList(ctx context.Context, eventID int64) ([]model.Participant, error) {
	const op = "participant_list"
	var ps []model.Participant
	if err := c.getJSON(ctx, op, fmt.Sprintf("/api/events/participant_list/%d", eventID), &ps); err != nil {
		return nil, err
	}
	for _, p := range ps {
		if p.ID <= 0 {
			return nil, fmt.Errorf("%s: %w: participant id %d", op, ErrMalformedResponse, p.ID)
		}
	}
	if ps == nil {
		ps = []model.Participant{}
	}
	return ps, nil
}
