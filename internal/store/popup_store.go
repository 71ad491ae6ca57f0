package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/clientportal/internal/models"
)

// PopupStore reads popups authored by admin tooling.
type PopupStore interface {
	// ListActive returns at most limit active popups ordered by display order ascending.
	ListActive(ctx context.Context, limit int) ([]*models.PopupAd, error)
}

// DismissalStore records popup dismissals.
type DismissalStore interface {
	// Get returns the dismissal for (userID, popupID), or nil when none exists.
	Get(ctx context.Context, userID string, popupID uuid.UUID) (*models.PopupDismissal, error)

	// Upsert inserts the dismissal or overwrites DismissedAt of the existing
	// row with the same (UserID, PopupID).
	Upsert(ctx context.Context, dismissal *models.PopupDismissal) error
}
