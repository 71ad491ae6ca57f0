package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/clientportal/internal/models"
)

// StockStore manages tracked stocks and their derived news.
type StockStore interface {
	// ListPicks returns the tracked stocks ordered by display order.
	ListPicks(ctx context.Context) ([]*models.StockPick, error)

	// ReplaceNews deletes every stock_pick_news row and inserts rows in one transaction.
	ReplaceNews(ctx context.Context, rows []*models.StockPickNews) error

	// ListNews returns the current news rows.
	ListNews(ctx context.Context) ([]*models.StockPickNews, error)
}

// NewsStore persists relay output that is not replaced wholesale.
type NewsStore interface {
	// InsertMarketNews appends a market summary.
	InsertMarketNews(ctx context.Context, news *models.MarketNews) error

	// MarkNewsletterSent stamps a newsletter as delivered.
	// Returns ErrNewsletterNotFound if no such newsletter exists.
	MarkNewsletterSent(ctx context.Context, newsletterID uuid.UUID, recipients int, sentAt time.Time) error
}
