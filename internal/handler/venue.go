package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/eventdesk/internal/model"
	"github.com/dukerupert/eventdesk/internal/store"
)

type VenueHandler struct {
	venueStore *store.VenueStore
	logger     *slog.Logger
}

func NewVenueHandler(vs *store.VenueStore, logger *slog.Logger) *VenueHandler {
	return &VenueHandler{venueStore: vs, logger: logger}
}

func parseVenue(r *http.Request, w http.ResponseWriter) (model.VenueInput, bool) {
	var in model.VenueInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return in, false
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return in, false
	}
	if in.Capacity <= 0 {
		writeError(w, http.StatusBadRequest, "capacity must be positive")
		return in, false
	}
	return in, true
}

func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	venues, err := h.venueStore.List()
	if err != nil {
		h.logger.Error("list venues", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list venues")
		return
	}
	if venues == nil {
		venues = []model.Venue{}
	}
	writeJSON(w, http.StatusOK, venues)
}

func (h *VenueHandler) load(w http.ResponseWriter, r *http.Request) (*model.Venue, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	venue, err := h.venueStore.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get venue")
		return nil, false
	}
	if venue == nil {
		writeError(w, http.StatusNotFound, "venue not found")
		return nil, false
	}
	return venue, true
}

func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	venue, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

func (h *VenueHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := parseVenue(r, w)
	if !ok {
		return
	}
	venue, err := h.venueStore.Create(in)
	if err != nil {
		h.logger.Error("create venue", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create venue")
		return
	}
	writeJSON(w, http.StatusCreated, venue)
}

func (h *VenueHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	in, ok := parseVenue(r, w)
	if !ok {
		return
	}
	venue, err := h.venueStore.Update(existing.ID, in)
	if err != nil {
		h.logger.Error("update venue", "venue_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update venue")
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

// Delete refuses while any event still references the venue.
func (h *VenueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	inUse, err := h.venueStore.InUse(existing.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check venue")
		return
	}
	if inUse {
		writeError(w, http.StatusConflict, "venue is referenced by events")
		return
	}
	if err := h.venueStore.Delete(existing.ID); err != nil {
		h.logger.Error("delete venue", "venue_id", existing.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete venue")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
