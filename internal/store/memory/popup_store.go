package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/clientportal/internal/models"
)

// PopupStore implements store.PopupStore and store.DismissalStore in memory.
type PopupStore struct {
	mu sync.RWMutex

	popups     []*models.PopupAd
	dismissals map[dismissalKey]*models.PopupDismissal
}

type dismissalKey struct {
	userID  string
	popupID uuid.UUID
}

// NewPopupStore creates a new in-memory popup store.
func NewPopupStore() *PopupStore {
	return &PopupStore{
		dismissals: make(map[dismissalKey]*models.PopupDismissal),
	}
}

// Add appends a popup.
func (s *PopupStore) Add(popup *models.PopupAd) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *popup
	s.popups = append(s.popups, &clone)
}

// ListActive returns at most limit active popups ordered by display order.
// Popups sharing a display order keep their insertion order.
func (s *PopupStore) ListActive(ctx context.Context, limit int) ([]*models.PopupAd, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.PopupAd
	for _, p := range s.popups {
		if p.Active {
			clone := *p
			active = append(active, &clone)
		}
	}

	slices.SortStableFunc(active, func(a, b *models.PopupAd) int {
		return cmp.Compare(a.DisplayOrder, b.DisplayOrder)
	})

	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}

	return active, nil
}

// Get returns the dismissal for (userID, popupID) or nil.
func (s *PopupStore) Get(ctx context.Context, userID string, popupID uuid.UUID) (*models.PopupDismissal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dismissals[dismissalKey{userID: userID, popupID: popupID}]
	if !ok {
		return nil, nil
	}

	clone := *d
	return &clone, nil
}

// Upsert inserts or overwrites the dismissal keyed by (UserID, PopupID).
func (s *PopupStore) Upsert(ctx context.Context, dismissal *models.PopupDismissal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *dismissal
	s.dismissals[dismissalKey{userID: dismissal.UserID, popupID: dismissal.PopupID}] = &clone
	return nil
}

// DismissalCount returns the number of stored dismissal rows.
func (s *PopupStore) DismissalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.dismissals)
}
