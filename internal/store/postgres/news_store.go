package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
)

// NewsStore implements store.StockStore and store.NewsStore using PostgreSQL.
type NewsStore struct {
	pool *pgxpool.Pool
}

// NewNewsStore creates a new PostgreSQL-backed news store.
func NewNewsStore(pool *pgxpool.Pool) *NewsStore {
	return &NewsStore{pool: pool}
}

// ListPicks returns the tracked stocks ordered by display order.
func (s *NewsStore) ListPicks(ctx context.Context) ([]*models.StockPick, error) {
	sql, args := from("stock_picks", "stock_pick_id", "stock_name", "ticker", "display_order").
		order("display_order", false).
		build()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock picks: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var picks []*models.StockPick
	for rows.Next() {
		var p models.StockPick
		if err := rows.Scan(&p.StockPickID, &p.StockName, &p.Ticker, &p.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan stock pick: %w", err)
		}
		picks = append(picks, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stock picks: %w", mapPostgresError(err))
	}

	return picks, nil
}

// ReplaceNews deletes all stock news and inserts rows in a single transaction.
func (s *NewsStore) ReplaceNews(ctx context.Context, rows []*models.StockPickNews) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// DELETE without a predicate is rejected by hosted backends, so match every row explicitly.
	if _, err := tx.Exec(ctx, `DELETE FROM stock_pick_news WHERE news_id IS NOT NULL`); err != nil {
		return fmt.Errorf("failed to clear stock news: %w", mapPostgresError(err))
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO stock_pick_news (news_id, stock_pick_id, stock_name, news_bullets, citations, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, row.NewsID, row.StockPickID, row.StockName, jsonList(row.NewsBullets), jsonList(row.Citations), row.FetchedAt)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert stock news: %w", mapPostgresError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit stock news: %w", mapPostgresError(err))
	}

	log.Debug().Int("rows", len(rows)).Msg("Replaced stock news")

	return nil
}

// ListNews returns the current stock news rows.
func (s *NewsStore) ListNews(ctx context.Context) ([]*models.StockPickNews, error) {
	sql, args := from("stock_pick_news",
		"news_id", "stock_pick_id", "stock_name", "news_bullets", "citations", "fetched_at",
	).
		order("stock_name", false).
		build()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock news: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var news []*models.StockPickNews
	for rows.Next() {
		var n models.StockPickNews
		if err := rows.Scan(&n.NewsID, &n.StockPickID, &n.StockName, &n.NewsBullets, &n.Citations, &n.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock news: %w", err)
		}
		news = append(news, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stock news: %w", mapPostgresError(err))
	}

	return news, nil
}

// InsertMarketNews appends a market summary.
func (s *NewsStore) InsertMarketNews(ctx context.Context, news *models.MarketNews) error {
	query := `
		INSERT INTO market_news (news_id, content, citations, fetched_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.pool.Exec(ctx, query, news.NewsID, news.Content, jsonList(news.Citations), news.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to insert market news: %w", mapPostgresError(err))
	}

	return nil
}

// MarkNewsletterSent stamps the newsletter with its send time and recipient count.
func (s *NewsStore) MarkNewsletterSent(ctx context.Context, newsletterID uuid.UUID, recipients int, sentAt time.Time) error {
	query := `
		UPDATE newsletters
		SET sent_at = $2, recipient_count = $3
		WHERE newsletter_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, newsletterID, sentAt, recipients)
	if err != nil {
		return fmt.Errorf("failed to mark newsletter sent: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 0 {
		return store.ErrNewsletterNotFound
	}

	return nil
}

// jsonList keeps nil slices from being stored as JSON null.
func jsonList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
