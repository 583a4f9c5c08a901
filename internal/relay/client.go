package relay

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies what a client may do inside a session.
type Role string

const (
	// RoleController is the single client per session allowed to publish
	// tally updates.
	RoleController Role = "pd"
	// RoleControllerLegacy is the legacy alias for RoleController still sent
	// by older PD software.
	RoleControllerLegacy Role = "pd_software"
	RoleCamera           Role = "camera"
	RoleStaff            Role = "staff"
	RoleViewer           Role = "viewer"
)

// IsController reports whether the role may publish tally updates.
func (r Role) IsController() bool {
	return r == RoleController || r == RoleControllerLegacy
}

func validRole(r Role) bool {
	switch r {
	case RoleController, RoleControllerLegacy, RoleCamera, RoleStaff, RoleViewer:
		return true
	}
	return false
}

// Client binds an identity to a single live connection. The connection
// directory owns the record; the session's member set only references it.
// ConnID is assigned once at the handshake and never reused.
type Client struct {
	ConnID        uuid.UUID
	SessionID     string
	Role          Role
	UserID        string
	Authenticated bool
	JoinedAt      time.Time
}
