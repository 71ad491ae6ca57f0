package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/wolfeidau/clientportal/internal/models"
)

// PortfolioStore implements store.PortfolioStore using PostgreSQL.
type PortfolioStore struct {
	pool *pgxpool.Pool
}

// NewPortfolioStore creates a new PostgreSQL-backed portfolio store.
func NewPortfolioStore(pool *pgxpool.Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

// ListHoldings returns the user's holdings, newest first.
func (s *PortfolioStore) ListHoldings(ctx context.Context, userID string) ([]*models.Holding, error) {
	// NUMERIC columns are read as text so they round-trip through decimal exactly.
	query := `
		SELECT holding_id, user_id, product_name, invested_amount::text, current_value::text, currency, invested_at
		FROM holdings
		WHERE user_id = $1
		ORDER BY invested_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var holdings []*models.Holding
	for rows.Next() {
		var (
			h                 models.Holding
			invested, current string
		)
		if err := rows.Scan(&h.HoldingID, &h.UserID, &h.ProductName, &invested, &current, &h.Currency, &h.InvestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if h.InvestedAmount, err = decimal.NewFromString(invested); err != nil {
			return nil, fmt.Errorf("invalid invested amount %q: %w", invested, err)
		}
		if h.CurrentValue, err = decimal.NewFromString(current); err != nil {
			return nil, fmt.Errorf("invalid current value %q: %w", current, err)
		}
		holdings = append(holdings, &h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", mapPostgresError(err))
	}

	return holdings, nil
}

// ListDistributions returns the user's distributions, most recent payment first.
func (s *PortfolioStore) ListDistributions(ctx context.Context, userID string) ([]*models.Distribution, error) {
	query := `
		SELECT distribution_id, user_id, product_name, amount::text, currency, paid_on
		FROM distributions
		WHERE user_id = $1
		ORDER BY paid_on DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var distributions []*models.Distribution
	for rows.Next() {
		var (
			d      models.Distribution
			amount string
		)
		if err := rows.Scan(&d.DistributionID, &d.UserID, &d.ProductName, &amount, &d.Currency, &d.PaidOn); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid distribution amount %q: %w", amount, err)
		}
		distributions = append(distributions, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate distributions: %w", mapPostgresError(err))
	}

	return distributions, nil
}
