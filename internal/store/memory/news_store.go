package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
)

// NewsStore implements store.StockStore and store.NewsStore in memory.
type NewsStore struct {
	mu sync.RWMutex

	picks       []*models.StockPick
	stockNews   []*models.StockPickNews
	marketNews  []*models.MarketNews
	newsletters map[uuid.UUID]*models.Newsletter

	// ReplaceErr, when set, is returned by ReplaceNews without modifying state.
	ReplaceErr error
}

// NewNewsStore creates a new in-memory news store.
func NewNewsStore() *NewsStore {
	return &NewsStore{
		newsletters: make(map[uuid.UUID]*models.Newsletter),
	}
}

// AddPick appends a tracked stock.
func (s *NewsStore) AddPick(pick *models.StockPick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *pick
	s.picks = append(s.picks, &clone)
}

// AddNewsletter stores a newsletter.
func (s *NewsStore) AddNewsletter(n *models.Newsletter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *n
	s.newsletters[n.NewsletterID] = &clone
}

// Newsletter returns a copy of a stored newsletter.
func (s *NewsStore) Newsletter(id uuid.UUID) (*models.Newsletter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.newsletters[id]
	if !ok {
		return nil, false
	}
	clone := *n
	return &clone, true
}

// MarketNews returns copies of the stored market summaries.
func (s *NewsStore) MarketNews() []*models.MarketNews {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.MarketNews, 0, len(s.marketNews))
	for _, n := range s.marketNews {
		clone := *n
		result = append(result, &clone)
	}
	return result
}

// ListPicks returns tracked stocks ordered by display order.
func (s *NewsStore) ListPicks(ctx context.Context) ([]*models.StockPick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.StockPick, 0, len(s.picks))
	for _, p := range s.picks {
		clone := *p
		result = append(result, &clone)
	}
	slices.SortStableFunc(result, func(a, b *models.StockPick) int {
		return cmp.Compare(a.DisplayOrder, b.DisplayOrder)
	})
	return result, nil
}

// ReplaceNews swaps the news table contents.
func (s *NewsStore) ReplaceNews(ctx context.Context, rows []*models.StockPickNews) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ReplaceErr != nil {
		return s.ReplaceErr
	}

	replaced := make([]*models.StockPickNews, 0, len(rows))
	for _, r := range rows {
		clone := *r
		clone.NewsBullets = slices.Clone(r.NewsBullets)
		clone.Citations = slices.Clone(r.Citations)
		replaced = append(replaced, &clone)
	}
	s.stockNews = replaced
	return nil
}

// ListNews returns the current news rows.
func (s *NewsStore) ListNews(ctx context.Context) ([]*models.StockPickNews, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.StockPickNews, 0, len(s.stockNews))
	for _, r := range s.stockNews {
		clone := *r
		result = append(result, &clone)
	}
	return result, nil
}

// InsertMarketNews appends a market summary.
func (s *NewsStore) InsertMarketNews(ctx context.Context, news *models.MarketNews) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *news
	s.marketNews = append(s.marketNews, &clone)
	return nil
}

// MarkNewsletterSent stamps a newsletter as delivered.
func (s *NewsStore) MarkNewsletterSent(ctx context.Context, newsletterID uuid.UUID, recipients int, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.newsletters[newsletterID]
	if !ok {
		return store.ErrNewsletterNotFound
	}
	n.SentAt = &sentAt
	n.RecipientCount = recipients
	return nil
}
