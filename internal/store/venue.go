package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/eventdesk/internal/model"
)

type VenueStore struct {
	db *sql.DB
}

func NewVenueStore(db *sql.DB) *VenueStore {
	return &VenueStore{db: db}
}

func scanVenue(scanner interface{ Scan(...any) error }) (*model.Venue, error) {
	var v model.Venue
	var facilities string
	err := scanner.Scan(&v.ID, &v.Name, &v.Location, &v.Capacity, &facilities)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(facilities), &v.Facilities); err != nil {
		return nil, fmt.Errorf("decode facilities: %w", err)
	}
	return &v, nil
}

const venueCols = `id, name, location, capacity, facilities`

func encodeFacilities(f []string) (string, error) {
	if f == nil {
		f = []string{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode facilities: %w", err)
	}
	return string(b), nil
}

func (s *VenueStore) Create(in model.VenueInput) (*model.Venue, error) {
	facilities, err := encodeFacilities(in.Facilities)
	if err != nil {
		return nil, err
	}
	result, err := s.db.Exec(
		`INSERT INTO venues (name, location, capacity, facilities) VALUES (?, ?, ?, ?)`,
		in.Name, in.Location, in.Capacity, facilities,
	)
	if err != nil {
		return nil, fmt.Errorf("insert venue: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *VenueStore) GetByID(id int64) (*model.Venue, error) {
	row := s.db.QueryRow(`SELECT `+venueCols+` FROM venues WHERE id = ?`, id)
	v, err := scanVenue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get venue: %w", err)
	}
	return v, nil
}

func (s *VenueStore) List() ([]model.Venue, error) {
	rows, err := s.db.Query(`SELECT ` + venueCols + ` FROM venues ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()

	var venues []model.Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		venues = append(venues, *v)
	}
	return venues, rows.Err()
}

func (s *VenueStore) Update(id int64, in model.VenueInput) (*model.Venue, error) {
	facilities, err := encodeFacilities(in.Facilities)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`UPDATE venues SET name = ?, location = ?, capacity = ?, facilities = ? WHERE id = ?`,
		in.Name, in.Location, in.Capacity, facilities, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update venue: %w", err)
	}
	return s.GetByID(id)
}

// Delete fails while any event still references the venue.
func (s *VenueStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM venues WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete venue: %w", err)
	}
	return nil
}

// InUse reports whether any event references the venue.
func (s *VenueStore) InUse(id int64) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE venue_id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("count venue events: %w", err)
	}
	return n > 0, nil
}
