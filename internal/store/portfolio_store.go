package store

import (
	"context"

	"github.com/wolfeidau/clientportal/internal/models"
)

// PortfolioStore reads a client's holdings and distributions.
// Row-level access is enforced by always filtering on the caller's user ID.
type PortfolioStore interface {
	ListHoldings(ctx context.Context, userID string) ([]*models.Holding, error)
	ListDistributions(ctx context.Context, userID string) ([]*models.Distribution, error)
}
