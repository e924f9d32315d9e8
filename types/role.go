package types

import (
	"fmt"
	"strings"
)

// Role is a capability that can be attached to an Identity.
type Role string

const (
	// RoleAttendee lets an identity register for events.
	RoleAttendee Role = "attendee"

	// RoleOrganizer lets an identity publish events on behalf of a company.
	RoleOrganizer Role = "organizer"
)

// Roles lists every attachable role in a stable order.
var Roles = []Role{RoleAttendee, RoleOrganizer}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAttendee, RoleOrganizer:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts user input into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}
