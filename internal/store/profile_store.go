package store

import (
	"context"

	"github.com/wolfeidau/clientportal/internal/models"
)

// ProfileStore reads user profiles and roles.
type ProfileStore interface {
	// Get retrieves a profile by user ID.
	// Returns ErrProfileNotFound if the user has no profile row.
	Get(ctx context.Context, userID string) (*models.Profile, error)

	// ListApproved returns all approved profiles ordered by creation time.
	ListApproved(ctx context.Context) ([]*models.Profile, error)

	// HasRole reports whether a user_roles row exists for (userID, role).
	HasRole(ctx context.Context, userID, role string) (bool, error)
}
