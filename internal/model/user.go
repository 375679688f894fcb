// Package model defines the data structures shared by every layer: users,
// playlists, songs and the presence read model.
package model

import "time"

// Role controls what a user may do beyond joining playlists as a collaborator.
type Role string

const (
	RoleGuest Role = "Guest"
	RoleHost  Role = "Host"
	RoleAdmin Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleAdmin:
		return true
	}
	return false
}

// CanHost reports whether a user with this role may create and host playlists.
func (r Role) CanHost() bool {
	return r == RoleHost || r == RoleAdmin
}

// User represents a registered account.
//
// Username is unique across the system and is what collaborators are invited by.
// PasswordHash is a bcrypt hash and is never serialised; the `json:"-"` tag
// keeps it out of every API response.
type User struct {
	ID           string    `json:"id"           db:"id"`
	Username     string    `json:"username"     db:"username"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	Role         Role      `json:"role"         db:"role"`
	ProfileImage string    `json:"profileImage" db:"profile_image"` // optional, may be empty
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}

// ActiveUser is a presence read model: a user currently viewing or editing a
// playlist, together with the time of their last heartbeat. It is never persisted.
type ActiveUser struct {
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	ProfileImage  string    `json:"profileImage,omitempty"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}
