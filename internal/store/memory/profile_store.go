package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
)

// ProfileStore implements store.ProfileStore using in-memory storage.
// This implementation is for testing and development only - data is lost on restart.
type ProfileStore struct {
	mu sync.RWMutex

	profiles map[string]*models.Profile // user_id -> Profile
	roles    map[string][]string        // user_id -> roles
}

// NewProfileStore creates a new in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]*models.Profile),
		roles:    make(map[string][]string),
	}
}

// Put stores a profile, replacing any existing profile for the same user.
func (s *ProfileStore) Put(profile *models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *profile
	s.profiles[profile.UserID] = &clone
}

// GrantRole adds a role row for the user.
func (s *ProfileStore) GrantRole(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(s.roles[userID], role) {
		s.roles[userID] = append(s.roles[userID], role)
	}
}

// Get retrieves a profile by user ID.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}

	clone := *profile
	return &clone, nil
}

// ListApproved returns all approved profiles ordered by creation time.
func (s *ProfileStore) ListApproved(ctx context.Context) ([]*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Profile
	for _, p := range s.profiles {
		if !p.Approved {
			continue
		}
		clone := *p
		result = append(result, &clone)
	}

	slices.SortStableFunc(result, func(a, b *models.Profile) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	return result, nil
}

// HasRole reports whether the user holds the role.
func (s *ProfileStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Contains(s.roles[userID], role), nil
}
