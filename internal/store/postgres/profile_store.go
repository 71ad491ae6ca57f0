package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
)

var profileColumns = []string{
	"user_id", "email", "display_name", "preferred_language",
	"is_approved", "is_admin", "created_at", "updated_at",
}

// ProfileStore implements store.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new PostgreSQL-backed profile store.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// Get retrieves a profile by user ID.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*models.Profile, error) {
	sql, args := from("profiles", profileColumns...).eq("user_id", userID).build()

	profile, err := scanProfile(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", mapPostgresError(err))
	}

	return profile, nil
}

// ListApproved returns all approved profiles ordered by creation time.
func (s *ProfileStore) ListApproved(ctx context.Context) ([]*models.Profile, error) {
	sql, args := from("profiles", profileColumns...).
		eq("is_approved", true).
		order("created_at", false).
		build()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved profiles: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", mapPostgresError(err))
	}

	return profiles, nil
}

// HasRole reports whether a user_roles row exists for (userID, role).
func (s *ProfileStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	sql, args := from("user_roles", "role").
		eq("user_id", userID).
		eq("role", role).
		limitTo(1).
		build()

	var found string
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&found)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check role: %w", mapPostgresError(err))
	}

	return true, nil
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.UserID,
		&p.Email,
		&p.DisplayName,
		&p.PreferredLanguage,
		&p.Approved,
		&p.Admin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
