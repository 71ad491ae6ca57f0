package store

import (
	"errors"
)

// Sentinel errors for common error conditions
var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrNewsletterNotFound = errors.New("newsletter not found")
	ErrConflict           = errors.New("conflicting write")
	ErrUnavailable        = errors.New("data store unavailable")
)

// DefaultPopupLimit is how many active popups are considered per page load.
const DefaultPopupLimit = 10
