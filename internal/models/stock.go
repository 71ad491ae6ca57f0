package models

import (
	"time"

	"github.com/google/uuid"
)

// StockPick is a stock tracked on the dashboard.
type StockPick struct {
	StockPickID  uuid.UUID
	StockName    string
	Ticker       string
	DisplayOrder int
}

// StockPickNews is the derived news summary for one stock pick.
// The whole table is replaced on every refresh; no history is kept.
type StockPickNews struct {
	NewsID      uuid.UUID
	StockPickID uuid.UUID
	StockName   string
	NewsBullets []string
	Citations   []string
	FetchedAt   time.Time
}

// MarketNews is a market summary produced by the news relay.
type MarketNews struct {
	NewsID    uuid.UUID
	Content   string
	Citations []string
	FetchedAt time.Time
}

// Newsletter is an admin-authored mailing. SentAt is nil until delivered.
type Newsletter struct {
	NewsletterID   uuid.UUID
	Subject        string
	SentAt         *time.Time
	RecipientCount int
}
