package model

import "strings"

// Role is the access level derived for an authenticated user.
type Role string

const (
	RoleUnauthenticated Role = ""
	RolePending         Role = "pending"
	RoleViewer          Role = "viewer"
	RoleUploader        Role = "uploader"
)

// ParseRole maps an access-level string from the remote user document to a
// Role. Unknown or empty values default to viewer, matching the backend's
// fallback for accounts without an explicit access field.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uploader", "admin":
		return RoleUploader
	case "pending":
		return RolePending
	default:
		return RoleViewer
	}
}

// SignedIn reports whether the role belongs to an authenticated, approved user.
func (r Role) SignedIn() bool {
	return r == RoleViewer || r == RoleUploader
}

// CanEdit reports whether the role may create, update or delete events and
// post announcements.
func (r Role) CanEdit() bool {
	return r == RoleUploader
}

func (r Role) String() string {
	if r == RoleUnauthenticated {
		return "unauthenticated"
	}
	return string(r)
}
