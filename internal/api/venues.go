package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dukerupert/eventdesk/internal/model"
)

func (c *Client) ListVenues(ctx context.Context) ([]model.Venue, error) {
	const op = "list_venues"
	var venues []model.Venue
	if err := c.getJSON(ctx, op, "/api/venues/all", &venues); err != nil {
		return nil, err
	}
	if err := validateAll(op, venues); err != nil {
		return nil, err
	}
	if venues == nil {
		venues = []model.Venue{}
	}
	return venues, nil
}

func (c *Client) GetVenue(ctx context.Context, id int64) (model.Venue, error) {
	const op = "get_venue"
	var v model.Venue
	if err := c.getJSON(ctx, op, fmt.Sprintf("/api/venues/%d", id), &v); err != nil {
		return model.Venue{}, err
	}
	if err := v.Validate(); err != nil {
		return model.Venue{}, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return v, nil
}

func (c *Client) CreateVenue(ctx context.Context, in model.VenueInput) (model.Venue, error) {
	return c.writeVenue(ctx, "create_venue", http.MethodPost, "/api/venues/create", in)
}

func (c *Client) UpdateVenue(ctx context.Context, id int64, in model.VenueInput) (model.Venue, error) {
	return c.writeVenue(ctx, "update_venue", http.MethodPut, fmt.Sprintf("/api/venues/update/%d", id), in)
}

func (c *Client) DeleteVenue(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, "delete_venue", http.MethodDelete, fmt.Sprintf("/api/venues/delete/%d", id), nil, nil)
}

func (c *Client) writeVenue(ctx context.Context, op, method, path string, in model.VenueInput) (model.Venue, error) {
	var v model.Venue
	if err := c.sendJSON(ctx, op, method, path, in, &v); err != nil {
		return model.Venue{}, err
	}
	if err := v.Validate(); err != nil {
		return model.Venue{}, fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return v, nil
}
