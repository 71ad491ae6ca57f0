package models

import (
	"time"

	"github.com/google/uuid"
)

// PopupAd is a promotional dialog authored by admin tooling.
// StartDate and EndDate are ISO calendar dates (YYYY-MM-DD), both inclusive.
// A nil bound means the range is open on that side.
type PopupAd struct {
	PopupID       uuid.UUID
	TitleKo       string
	TitleEn       string
	DescriptionKo string
	DescriptionEn string
	ButtonTextKo  string
	ButtonTextEn  string
	ButtonLink    *string
	ImageURL      *string
	StartDate     *string
	EndDate       *string
	DisplayOrder  int
	Active        bool
	CreatedAt     time.Time
}

// ActiveOn reports whether the popup's date range admits the given ISO date.
// Comparison is lexicographic on the date strings.
func (p *PopupAd) ActiveOn(date string) bool {
	if p.StartDate != nil && *p.StartDate > date {
		return false
	}
	if p.EndDate != nil && *p.EndDate < date {
		return false
	}
	return true
}

// PopupDismissal records that a user dismissed (or acted on) a popup.
// There is at most one row per (UserID, PopupID).
type PopupDismissal struct {
	UserID      string
	PopupID     uuid.UUID
	DismissedAt time.Time
}
