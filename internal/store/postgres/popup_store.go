package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/models"
)

// PopupStore implements store.PopupStore and store.DismissalStore using PostgreSQL.
type PopupStore struct {
	pool *pgxpool.Pool
}

// NewPopupStore creates a new PostgreSQL-backed popup store.
func NewPopupStore(pool *pgxpool.Pool) *PopupStore {
	return &PopupStore{pool: pool}
}

// ListActive returns at most limit active popups ordered by display order.
func (s *PopupStore) ListActive(ctx context.Context, limit int) ([]*models.PopupAd, error) {
	sql, args := from("popup_ads",
		"popup_id", "title_ko", "title_en", "description_ko", "description_en",
		"button_text_ko", "button_text_en", "button_link", "image_url",
		"start_date", "end_date", "display_order", "is_active", "created_at",
	).
		eq("is_active", true).
		order("display_order", false).
		limitTo(limit).
		build()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list popups: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var popups []*models.PopupAd
	for rows.Next() {
		var p models.PopupAd
		if err := rows.Scan(
			&p.PopupID,
			&p.TitleKo,
			&p.TitleEn,
			&p.DescriptionKo,
			&p.DescriptionEn,
			&p.ButtonTextKo,
			&p.ButtonTextEn,
			&p.ButtonLink,
			&p.ImageURL,
			&p.StartDate,
			&p.EndDate,
			&p.DisplayOrder,
			&p.Active,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan popup: %w", err)
		}
		popups = append(popups, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate popups: %w", mapPostgresError(err))
	}

	return popups, nil
}

// Get returns the dismissal for (userID, popupID) or nil when none exists.
func (s *PopupStore) Get(ctx context.Context, userID string, popupID uuid.UUID) (*models.PopupDismissal, error) {
	sql, args := from("popup_dismissals", "dismissed_at").
		eq("user_id", userID).
		eq("popup_id", popupID).
		build()

	d := &models.PopupDismissal{UserID: userID, PopupID: popupID}
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&d.DismissedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dismissal: %w", mapPostgresError(err))
	}

	return d, nil
}

// Upsert inserts the dismissal or refreshes dismissed_at on conflict.
func (s *PopupStore) Upsert(ctx context.Context, dismissal *models.PopupDismissal) error {
	query := `
		INSERT INTO popup_dismissals (user_id, popup_id, dismissed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, popup_id)
		DO UPDATE SET dismissed_at = EXCLUDED.dismissed_at
	`

	_, err := s.pool.Exec(ctx, query, dismissal.UserID, dismissal.PopupID, dismissal.DismissedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert dismissal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("user_id", dismissal.UserID).
		Str("popup_id", dismissal.PopupID.String()).
		Msg("Recorded popup dismissal")

	return nil
}
