package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type EventStatus string

const (
	StatusPending   EventStatus = "Pending"
	StatusConfirmed EventStatus = "Confirmed"
	StatusRejected  EventStatus = "Rejected"
)

// ParseEventStatus accepts exactly the three wire values.
func ParseEventStatus(s string) (EventStatus, error) {
	switch st := EventStatus(s); st {
	case StatusPending, StatusConfirmed, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown event status %q", s)
}

// Terminal reports whether no further transition is allowed from s.
func (s EventStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to EventStatus) bool {
	return from == StatusPending && to.Terminal()
}

func (s *EventStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	st, err := ParseEventStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

type Event struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Date         Date        `json:"date"`
	StartTime    TimeOfDay   `json:"start_time"`
	EndTime      TimeOfDay   `json:"end_time"`
	VenueID      *int64      `json:"venue_id,omitempty"`
	Type         string      `json:"type,omitempty"`
	Location     string      `json:"location,omitempty"`
	HostID       int64       `json:"host_id,omitempty"`
	Status       EventStatus `json:"status,omitempty"`
	Participants []int64     `json:"participants,omitempty"`
	Volunteers   []int64     `json:"volunteers,omitempty"`
}

// StartAt returns the event start in the viewer's location.
func (e Event) StartAt(loc *time.Location) time.Time {
	return At(e.Date, e.StartTime, loc)
}

// EndAt returns the event end in the viewer's location.
func (e Event) EndAt(loc *time.Location) time.Time {
	return At(e.Date, e.EndTime, loc)
}

// Validate checks the fields every decoded event must carry.
func (e Event) Validate() error {
	var errs []error
	if e.ID <= 0 {
		errs = append(errs, errors.New("id must be positive"))
	}
	if e.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if e.Date.IsZero() {
		errs = append(errs, errors.New("date is required"))
	}
	if !e.StartTime.Before(e.EndTime) {
		errs = append(errs, errors.New("start_time must be before end_time"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("event %d: %w", e.ID, err)
	}
	return nil
}

// EventInput is the body of create and update requests.
type EventInput struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        Date      `json:"date"`
	StartTime   TimeOfDay `json:"start_time"`
	EndTime     TimeOfDay `json:"end_time"`
	VenueID     *int64    `json:"venue_id,omitempty"`
	Type        string    `json:"type,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// Availability is the binary slot signal attached to pending events.
type Availability bool

const (
	Available   Availability = true
	Unavailable Availability = false
)

func (a Availability) String() string {
	if a {
		return "Available"
	}
	return "Unavailable"
}

// ParseAvailability maps the remote text body onto the binary signal.
// Anything other than "Available" is Unavailable.
func ParseAvailability(body string) Availability {
	return Availability(body == "Available")
}

type RegistrationKind string

const (
	KindParticipant RegistrationKind = "participant"
	KindVolunteer   RegistrationKind = "volunteer"
)

func ParseRegistrationKind(s string) (RegistrationKind, error) {
	switch k := RegistrationKind(s); k {
	case KindParticipant, KindVolunteer:
		return k, nil
	}
	return "", fmt.Errorf("unknown registration kind %q", s)
}
