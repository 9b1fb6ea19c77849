package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/eventdesk/internal/auth"
	"github.com/dukerupert/eventdesk/internal/model"
	"github.com/dukerupert/eventdesk/internal/store"
)

type EventHandler struct {
	eventStore *store.EventStore
	venueStore *store.VenueStore
	userStore  *store.UserStore
	logger     *slog.Logger
	now        func() time.Time
}

func NewEventHandler(es *store.EventStore, vs *store.VenueStore, us *store.UserStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		eventStore: es,
		venueStore: vs,
		userStore:  us,
		logger:     logger,
		now:        time.Now,
	}
}

func (h *EventHandler) writeEvents(w http.ResponseWriter, events []model.Event, err error) {
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ListConfirmed returns every Confirmed event.
func (h *EventHandler) ListConfirmed(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventStore.ListByStatus(model.StatusConfirmed)
	h.writeEvents(w, events, err)
}

func (h *EventHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventStore.ListByStatus(model.StatusPending)
	h.writeEvents(w, events, err)
}

func (h *EventHandler) ListHosted(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventStore.ListHosted(auth.UserID(r.Context()))
	h.writeEvents(w, events, err)
}

func (h *EventHandler) ListVolunteered(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventStore.ListVolunteered(auth.UserID(r.Context()))
	h.writeEvents(w, events, err)
}

func (h *EventHandler) ListAttending(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventStore.ListParticipating(auth.UserID(r.Context()), model.DateOf(h.now()))
	h.writeEvents(w, events, err)
}

func (h *EventHandler) ListAttended(w http.ResponseWriter, r *http.Request) {
	events, err := h.eventStore.ListAttended(auth.UserID(r.Context()))
	h.writeEvents(w, events, err)
}

func (h *EventHandler) parseAndValidate(r *http.Request, w http.ResponseWriter) (model.EventInput, bool) {
	var in model.EventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event: "+err.Error())
		return in, false
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return in, false
	}
	if in.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "date is required")
		return in, false
	}
	if !in.StartTime.Before(in.EndTime) {
		writeError(w, http.StatusBadRequest, "start_time must be before end_time")
		return in, false
	}

	if in.VenueID != nil {
		venue, err := h.venueStore.GetByID(*in.VenueID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check venue")
			return in, false
		}
		if venue == nil {
			writeError(w, http.StatusBadRequest, "venue not found")
			return in, false
		}
		if in.Location == "" {
			in.Location = venue.Location
		}
	}

	return in, true
}

// load fetches the {id} event, writing 400/404/500 itself on failure.
func (h *EventHandler) load(w http.ResponseWriter, r *http.Request) (*model.Event, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	event, err := h.eventStore.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return nil, false
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, false
	}
	return event, true
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	if !ident.Role.CanCreateEvents() {
		writeError(w, http.StatusForbidden, "not allowed to create events")
		return
	}

	in, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}

	event, err := h.eventStore.Create(ident.UserID, in)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.logger.Info("event submitted", "event_id", event.ID, "host_id", ident.UserID)
	writeJSON(w, http.StatusCreated, event)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Update is host only and puts the event back into Pending.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if existing.HostID != auth.UserID(r.Context()) {
		writeError(w, http.StatusForbidden, "not authorized to update this event")
		return
	}

	in, ok := h.parseAndValidate(r, w)
	if !ok {
		return
	}

	event, err := h.eventStore.Update(existing.ID, in)
	if err != nil {
		h.logger.Error("update event", "event_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if existing.HostID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context()) {
		writeError(w, http.StatusForbidden, "not authorized to delete this event")
		return
	}

	if err := h.eventStore.Delete(existing.ID); err != nil {
		h.logger.Error("delete event", "event_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Availability answers in plain text: "Available" when no Confirmed event
// overlaps the slot at the same venue, "Unavailable" otherwise.
func (h *EventHandler) Availability(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	conflict, err := h.eventStore.HasConflict(*event)
	if err != nil {
		h.logger.Error("check availability", "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check availability")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, model.Availability(!conflict).String())
}

type decisionRequest struct {
	Status string `json:"status"`
}

// Approve moves a Pending event to Confirmed or Rejected.
func (h *EventHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	outcome, err := model.ParseEventStatus(req.Status)
	if err != nil || !outcome.Terminal() {
		writeError(w, http.StatusBadRequest, "status must be Confirmed or Rejected")
		return
	}

	event, ok := h.load(w, r)
	if !ok {
		return
	}
	if !model.CanTransition(event.Status, outcome) {
		writeError(w, http.StatusConflict, fmt.Sprintf("event is already %s", event.Status))
		return
	}
	if outcome == model.StatusConfirmed {
		conflict, err := h.eventStore.HasConflict(*event)
		if err != nil {
			h.logger.Error("check availability", "event_id", event.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check availability")
			return
		}
		if conflict {
			writeError(w, http.StatusConflict, "Another event taking place!")
			return
		}
	}

	err = h.eventStore.SetStatus(event.ID, outcome)
	if errors.Is(err, store.ErrNotPending) {
		writeError(w, http.StatusConflict, "event is no longer Pending")
		return
	}
	if err != nil {
		h.logger.Error("set status", "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	event.Status = outcome

	h.logger.Info("event decided", "event_id", event.ID, "status", outcome, "admin_id", auth.UserID(r.Context()))
	writeJSON(w, http.StatusOK, event)
}

func (h *EventHandler) RegisterParticipant(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, model.KindParticipant)
}

func (h *EventHandler) RegisterVolunteer(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, model.KindVolunteer)
}

func (h *EventHandler) register(w http.ResponseWriter, r *http.Request, kind model.RegistrationKind) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	userID := auth.UserID(r.Context())

	err := h.eventStore.Register(event.ID, userID, kind)
	switch {
	case errors.Is(err, store.ErrAlreadyRegistered):
		writeError(w, http.StatusBadRequest, "Already registered")
		return
	case errors.Is(err, store.ErrEventFull):
		writeError(w, http.StatusBadRequest, "Event is full")
		return
	case err != nil:
		h.logger.Error("register", "event_id", event.ID, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	updated, err := h.eventStore.GetByID(event.ID)
	if err != nil || updated == nil {
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// canManage reports whether userID hosts or volunteers at the event, or is
// an admin.
func (h *EventHandler) canManage(r *http.Request, event *model.Event) (bool, error) {
	userID := auth.UserID(r.Context())
	if event.HostID == userID || auth.IsAdmin(r.Context()) {
		return true, nil
	}
	return h.eventStore.IsVolunteer(event.ID, userID)
}

// MarkAttendance records a registered participant as present. Hosts,
// volunteers and admins may mark anyone; participants may mark themselves.
// Re-marking is not an error.
func (h *EventHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	attendeeID, err := parseNamedID(r, "userId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	attendee, err := h.userStore.GetByID(attendeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if attendee == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	registered, err := h.eventStore.IsParticipant(event.ID, attendeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check registration")
		return
	}
	if !registered {
		writeError(w, http.StatusBadRequest, "User is not registered for the event")
		return
	}

	callerID := auth.UserID(r.Context())
	allowed := callerID == attendeeID
	if !allowed {
		if allowed, err = h.canManage(r, event); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to check permissions")
			return
		}
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "Not authorized to mark attendance")
		return
	}

	inserted, err := h.eventStore.MarkAttendance(event.ID, attendeeID, callerID)
	if err != nil {
		h.logger.Error("mark attendance", "event_id", event.ID, "user_id", attendeeID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark attendance")
		return
	}
	if !inserted {
		writeMessage(w, http.StatusOK, "User already marked as attended")
		return
	}
	writeMessage(w, http.StatusOK, fmt.Sprintf("User %s marked as attended for event %s", attendee.Name, event.Name))
}

// Participants is visible to hosts, volunteers and admins.
func (h *EventHandler) Participants(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	allowed, err := h.canManage(r, event)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check permissions")
		return
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "Not authorized to view participants")
		return
	}

	ps, err := h.eventStore.Participants(event.ID)
	if err != nil {
		h.logger.Error("list participants", "event_id", event.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	if ps == nil {
		ps = []model.Participant{}
	}
	writeJSON(w, http.StatusOK, ps)
}
