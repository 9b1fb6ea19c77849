package model

import (
	"errors"
	"fmt"
)

type Venue struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Location   string   `json:"location"`
	Capacity   int      `json:"capacity"`
	Facilities []string `json:"facilities,omitempty"`
}

func (v Venue) Validate() error {
	var errs []error
	if v.ID <= 0 {
		errs = append(errs, errors.New("id must be positive"))
	}
	if v.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if v.Capacity <= 0 {
		errs = append(errs, errors.New("capacity must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("venue %d: %w", v.ID, err)
	}
	return nil
}

type VenueInput struct {
	Name       string   `json:"name"`
	Location   string   `json:"location"`
	Capacity   int      `json:"capacity"`
	Facilities []string `json:"facilities,omitempty"`
}
