package model

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleManager     Role = "manager"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
)

// ParseRole maps unknown or empty values to RoleParticipant.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleOrganizer:
		return r
	}
	return RoleParticipant
}

// CanCreateEvents reports whether the role may submit new events.
func (r Role) CanCreateEvents() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleOrganizer
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = ParseRole(s)
	return nil
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"-"`
}

// Participant is the projection returned by participant lists.
type Participant struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
