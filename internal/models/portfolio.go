package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is a client's position in an investment product.
type Holding struct {
	HoldingID      uuid.UUID       `json:"holding_id"`
	UserID         string          `json:"-"`
	ProductName    string          `json:"product_name"`
	InvestedAmount decimal.Decimal `json:"invested_amount"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	Currency       string          `json:"currency"`
	InvestedAt     time.Time       `json:"invested_at"`
}

// Distribution is a payout made to a client from a product.
type Distribution struct {
	DistributionID uuid.UUID       `json:"distribution_id"`
	UserID         string          `json:"-"`
	ProductName    string          `json:"product_name"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaidOn         string          `json:"paid_on"` // ISO calendar date
}
