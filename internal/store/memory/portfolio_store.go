package memory

import (
	"context"
	"sync"

	"github.com/wolfeidau/clientportal/internal/models"
)

// PortfolioStore implements store.PortfolioStore in memory.
type PortfolioStore struct {
	mu sync.RWMutex

	holdings      map[string][]*models.Holding      // user_id -> holdings
	distributions map[string][]*models.Distribution // user_id -> distributions
}

// NewPortfolioStore creates a new in-memory portfolio store.
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{
		holdings:      make(map[string][]*models.Holding),
		distributions: make(map[string][]*models.Distribution),
	}
}

// AddHolding stores a holding for its user.
func (s *PortfolioStore) AddHolding(h *models.Holding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *h
	s.holdings[h.UserID] = append(s.holdings[h.UserID], &clone)
}

// AddDistribution stores a distribution for its user.
func (s *PortfolioStore) AddDistribution(d *models.Distribution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *d
	s.distributions[d.UserID] = append(s.distributions[d.UserID], &clone)
}

func (s *PortfolioStore) ListHoldings(ctx context.Context, userID string) ([]*models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Holding, 0, len(s.holdings[userID]))
	for _, h := range s.holdings[userID] {
		clone := *h
		result = append(result, &clone)
	}
	return result, nil
}

func (s *PortfolioStore) ListDistributions(ctx context.Context, userID string) ([]*models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Distribution, 0, len(s.distributions[userID]))
	for _, d := range s.distributions[userID] {
		clone := *d
		result = append(result, &clone)
	}
	return result, nil
}
