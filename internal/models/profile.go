package models

import (
	"time"
)

// Role names stored in user_roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Profile is the per-user row created by the backend on first sign-up.
// Profiles are mutated by admin approval and never deleted by the portal.
type Profile struct {
	UserID            string // auth user id (uuid as text)
	Email             string
	DisplayName       string
	PreferredLanguage string // "ko" or "en", empty when unset
	Approved          bool
	Admin             bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasEmail reports whether the profile can receive newsletters.
func (p *Profile) HasEmail() bool {
	return p.Email != ""
}
