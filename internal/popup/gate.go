// Package popup decides which promotional popup, if any, a user sees on a
// page load and records dismissals.
package popup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
)

// DefaultLocation is the viewers' time zone when none is configured.
const DefaultLocation = "Asia/Seoul"

const isoDate = "2006-01-02"

// Gate selects popups and records dismissals.
type Gate struct {
	popups     store.PopupStore
	dismissals store.DismissalStore
	loc        *time.Location
	now        func() time.Time
	limit      int
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithLocation sets the viewers' time zone.
func WithLocation(loc *time.Location) Option {
	return func(g *Gate) {
		g.loc = loc
	}
}

// NewGate creates a gate over the given stores.
func NewGate(popups store.PopupStore, dismissals store.DismissalStore, opts ...Option) *Gate {
	g := &Gate{
		popups:     popups,
		dismissals: dismissals,
		loc:        time.Local,
		now:        time.Now,
		limit:      store.DefaultPopupLimit,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// LoadLocation resolves a time zone name, falling back to DefaultLocation for "".
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return loc, nil
}

// Select returns the popup to show userID on this page load, or nil.
// Store failures are logged and reported as nothing to show.
func (g *Gate) Select(ctx context.Context, userID string) *models.PopupAd {
	now := g.now()

	candidates, err := g.popups.ListActive(ctx, g.limit)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to list popups")
		return nil
	}

	// Date ranges compare against the UTC calendar date while dismissals
	// compare in the viewer's zone; the two rules differ on purpose.
	selected := SelectForDate(candidates, now.UTC().Format(isoDate))
	if selected == nil {
		return nil
	}

	dismissal, err := g.dismissals.Get(ctx, userID, selected.PopupID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("popup_id", selected.PopupID.String()).Msg("Failed to load popup dismissal")
		return nil
	}

	if dismissal != nil && DismissedOn(dismissal.DismissedAt, now, g.loc) {
		return nil
	}

	return selected
}

// Dismiss records that userID dismissed or acted on popupID now. A second
// dismissal on the same day leaves a single row.
func (g *Gate) Dismiss(ctx context.Context, userID string, popupID uuid.UUID) error {
	err := g.dismissals.Upsert(ctx, &models.PopupDismissal{
		UserID:      userID,
		PopupID:     popupID,
		DismissedAt: g.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record dismissal: %w", err)
	}
	return nil
}

// SelectForDate returns the first popup, in the given order, whose date
// range admits today (an ISO date), or nil.
func SelectForDate(popups []*models.PopupAd, today string) *models.PopupAd {
	for _, p := range popups {
		if p.ActiveOn(today) {
			return p
		}
	}
	return nil
}

// DismissedOn reports whether dismissedAt falls on the same calendar day as
// now, both read in loc.
func DismissedOn(dismissedAt, now time.Time, loc *time.Location) bool {
	dy, dm, dd := dismissedAt.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return dy == ny && dm == nm && dd == nd
}
