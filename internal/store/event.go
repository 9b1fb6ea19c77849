package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/eventdesk/internal/model"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrEventFull         = errors.New("event is full")
	// ErrNotPending is returned by SetStatus when the event has already been
	// decided (or does not exist).
	ErrNotPending = errors.New("event is not pending")
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, name, description, date, start_time, end_time, venue_id, type, location, host_id, status`

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var date, start, end, status string
	var venueID sql.NullInt64
	err := scanner.Scan(&e.ID, &e.Name, &e.Description, &date, &start, &end, &venueID, &e.Type, &e.Location, &e.HostID, &status)
	if err != nil {
		return nil, err
	}
	if e.Date, err = model.ParseDate(date); err != nil {
		return nil, fmt.Errorf("event %d: %w", e.ID, err)
	}
	if e.StartTime, err = model.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("event %d: %w", e.ID, err)
	}
	if e.EndTime, err = model.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("event %d: %w", e.ID, err)
	}
	if e.Status, err = model.ParseEventStatus(status); err != nil {
		return nil, fmt.Errorf("event %d: %w", e.ID, err)
	}
	if venueID.Valid {
		e.VenueID = &venueID.Int64
	}
	return &e, nil
}

func nullVenue(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Create stores a new event in Pending.
func (s *EventStore) Create(hostID int64, in model.EventInput) (*model.Event, error) {
	result, err := s.db.Exec(
		`INSERT INTO events (name, description, date, start_time, end_time, venue_id, type, location, host_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Description, in.Date.String(), in.StartTime.String(), in.EndTime.String(),
		nullVenue(in.VenueID), in.Type, in.Location, hostID, string(model.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := s.attachRegistrations(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EventStore) query(what, q string, args ...any) ([]model.Event, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	rows.Close()

	// Registrations are loaded after the cursor is closed so a single
	// connection is enough.
	for i := range events {
		if err := s.attachRegistrations(&events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (s *EventStore) ListByStatus(status model.EventStatus) ([]model.Event, error) {
	return s.query("list events by status",
		`SELECT `+eventCols+` FROM events WHERE status = ? ORDER BY date, start_time, id`, string(status))
}

func (s *EventStore) ListHosted(hostID int64) ([]model.Event, error) {
	return s.query("list hosted events",
		`SELECT `+eventCols+` FROM events WHERE host_id = ? ORDER BY date, start_time, id`, hostID)
}

func (s *EventStore) ListVolunteered(userID int64) ([]model.Event, error) {
	return s.query("list volunteered events",
		`SELECT `+prefixed("e")+` FROM events e JOIN volunteers v ON v.event_id = e.id
		 WHERE v.user_id = ? ORDER BY e.date, e.start_time, e.id`, userID)
}

// ListParticipating returns events the user is registered for on or after from.
func (s *EventStore) ListParticipating(userID int64, from model.Date) ([]model.Event, error) {
	return s.query("list participating events",
		`SELECT `+prefixed("e")+` FROM events e JOIN participants p ON p.event_id = e.id
		 WHERE p.user_id = ? AND e.date >= ? ORDER BY e.date, e.start_time, e.id`, userID, from.String())
}

func (s *EventStore) ListAttended(userID int64) ([]model.Event, error) {
	return s.query("list attended events",
		`SELECT `+prefixed("e")+` FROM events e JOIN attendance a ON a.event_id = e.id
		 WHERE a.user_id = ? ORDER BY e.date, e.start_time, e.id`, userID)
}

func prefixed(alias string) string {
	return alias + ".id, " + alias + ".name, " + alias + ".description, " + alias + ".date, " +
		alias + ".start_time, " + alias + ".end_time, " + alias + ".venue_id, " + alias + ".type, " +
		alias + ".location, " + alias + ".host_id, " + alias + ".status"
}

func (s *EventStore) attachRegistrations(e *model.Event) error {
	var err error
	if e.Participants, err = s.userIDs(`SELECT user_id FROM participants WHERE event_id = ? ORDER BY user_id`, e.ID); err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	if e.Volunteers, err = s.userIDs(`SELECT user_id FROM volunteers WHERE event_id = ? ORDER BY user_id`, e.ID); err != nil {
		return fmt.Errorf("load volunteers: %w", err)
	}
	return nil
}

func (s *EventStore) userIDs(q string, eventID int64) ([]int64, error) {
	rows, err := s.db.Query(q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update replaces the event's fields and sends it back to Pending.
func (s *EventStore) Update(id int64, in model.EventInput) (*model.Event, error) {
	_, err := s.db.Exec(
		`UPDATE events
		 SET name = ?, description = ?, date = ?, start_time = ?, end_time = ?, venue_id = ?, type = ?, location = ?, status = ?
		 WHERE id = ?`,
		in.Name, in.Description, in.Date.String(), in.StartTime.String(), in.EndTime.String(),
		nullVenue(in.VenueID), in.Type, in.Location, string(model.StatusPending), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(id)
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// SetStatus decides a Pending event. The update only applies while the event
// is still Pending, so concurrent decisions cannot overwrite each other.
func (s *EventStore) SetStatus(id int64, status model.EventStatus) error {
	result, err := s.db.Exec(
		`UPDATE events SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, string(model.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// HasConflict reports whether a Confirmed event other than e occupies e's
// venue on the same date with an overlapping time range. Events without a
// venue never conflict.
func (s *EventStore) HasConflict(e model.Event) (bool, error) {
	if e.VenueID == nil {
		return false, nil
	}
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM events
		 WHERE venue_id = ? AND date = ? AND status = ? AND id != ?
		   AND start_time < ? AND end_time > ?`,
		*e.VenueID, e.Date.String(), string(model.StatusConfirmed), e.ID,
		e.EndTime.String(), e.StartTime.String(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check conflict: %w", err)
	}
	return n > 0, nil
}

// Register adds userID to the event's participants or volunteers.
// Participants are capped by the venue capacity.
func (s *EventStore) Register(eventID, userID int64, kind model.RegistrationKind) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	table := "participants"
	if kind == model.KindVolunteer {
		table = "volunteers"
	}

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE event_id = ? AND user_id = ?`, eventID, userID).Scan(&exists); err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	if exists > 0 {
		return ErrAlreadyRegistered
	}

	if kind == model.KindParticipant {
		var capacity sql.NullInt64
		err := tx.QueryRow(
			`SELECT v.capacity FROM events e LEFT JOIN venues v ON v.id = e.venue_id WHERE e.id = ?`,
			eventID,
		).Scan(&capacity)
		if err != nil {
			return fmt.Errorf("get capacity: %w", err)
		}
		if capacity.Valid {
			var count int64
			if err := tx.QueryRow(`SELECT COUNT(*) FROM participants WHERE event_id = ?`, eventID).Scan(&count); err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if count >= capacity.Int64 {
				return ErrEventFull
			}
		}
	}

	if _, err := tx.Exec(`INSERT INTO `+table+` (event_id, user_id) VALUES (?, ?)`, eventID, userID); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return tx.Commit()
}

func (s *EventStore) IsParticipant(eventID, userID int64) (bool, error) {
	return s.exists(`SELECT COUNT(*) FROM participants WHERE event_id = ? AND user_id = ?`, eventID, userID)
}

func (s *EventStore) IsVolunteer(eventID, userID int64) (bool, error) {
	return s.exists(`SELECT COUNT(*) FROM volunteers WHERE event_id = ? AND user_id = ?`, eventID, userID)
}

func (s *EventStore) exists(q string, args ...any) (bool, error) {
	var n int
	if err := s.db.QueryRow(q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

// Participants lists the registered participants of an event.
func (s *EventStore) Participants(eventID int64) ([]model.Participant, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.name, u.email FROM participants p JOIN users u ON u.id = p.user_id
		 WHERE p.event_id = ? ORDER BY u.name, u.id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var ps []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Email); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ps = append(ps, p)
	}
	return ps, rows.Err()
}

// MarkAttendance records userID as present. It reports false, without error,
// when the user was already marked.
func (s *EventStore) MarkAttendance(eventID, userID, markedBy int64) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO attendance (event_id, user_id, marked_by) VALUES (?, ?, ?)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		eventID, userID, markedBy,
	)
	if err != nil {
		return false, fmt.Errorf("mark attendance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *EventStore) HasAttended(eventID, userID int64) (bool, error) {
	return s.exists(`SELECT COUNT(*) FROM attendance WHERE event_id = ? AND user_id = ?`, eventID, userID)
}
