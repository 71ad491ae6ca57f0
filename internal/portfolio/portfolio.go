// Package portfolio summarises a client's holdings and distributions.
package portfolio

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Totals are the aggregated figures for one currency.
type Totals struct {
	Currency  string          `json:"currency"`
	Invested  decimal.Decimal `json:"invested"`
	Current   decimal.Decimal `json:"current"`
	Gain      decimal.Decimal `json:"gain"`
	ReturnPct decimal.Decimal `json:"return_pct"`
}

// HoldingsReport lists the holdings with per-currency totals.
type HoldingsReport struct {
	Holdings []*models.Holding `json:"holdings"`
	Totals   []Totals          `json:"totals"`
}

// DistributionTotal is the paid-out sum for one currency.
type DistributionTotal struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// DistributionsReport lists the distributions with per-currency totals.
type DistributionsReport struct {
	Distributions []*models.Distribution `json:"distributions"`
	Totals        []DistributionTotal    `json:"totals"`
}

// Service reads portfolio rows for the signed-in user.
type Service struct {
	store store.PortfolioStore
}

// NewService creates a portfolio service.
func NewService(s store.PortfolioStore) *Service {
	return &Service{store: s}
}

// Holdings returns the user's holdings and their totals.
func (s *Service) Holdings(ctx context.Context, userID string) (*HoldingsReport, error) {
	holdings, err := s.store.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	return &HoldingsReport{Holdings: holdings, Totals: SumHoldings(holdings)}, nil
}

// Distributions returns the user's distributions and their totals.
func (s *Service) Distributions(ctx context.Context, userID string) (*DistributionsReport, error) {
	distributions, err := s.store.ListDistributions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	return &DistributionsReport{Distributions: distributions, Totals: SumDistributions(distributions)}, nil
}

// SumHoldings totals holdings per currency, sorted by currency code.
// ReturnPct is rounded to two places and is zero when nothing was invested.
func SumHoldings(holdings []*models.Holding) []Totals {
	byCurrency := map[string]*Totals{}
	for _, h := range holdings {
		t, ok := byCurrency[h.Currency]
		if !ok {
			t = &Totals{Currency: h.Currency}
			byCurrency[h.Currency] = t
		}
		t.Invested = t.Invested.Add(h.InvestedAmount)
		t.Current = t.Current.Add(h.CurrentValue)
	}

	result := make([]Totals, 0, len(byCurrency))
	for _, t := range byCurrency {
		t.Gain = t.Current.Sub(t.Invested)
		if !t.Invested.IsZero() {
			t.ReturnPct = t.Gain.Mul(hundred).Div(t.Invested).Round(2)
		}
		result = append(result, *t)
	}

	slices.SortFunc(result, func(a, b Totals) int {
		return cmp.Compare(a.Currency, b.Currency)
	})
	return result
}

// SumDistributions totals distributions per currency, sorted by currency code.
func SumDistributions(distributions []*models.Distribution) []DistributionTotal {
	byCurrency := map[string]decimal.Decimal{}
	for _, d := range distributions {
		byCurrency[d.Currency] = byCurrency[d.Currency].Add(d.Amount)
	}

	result := make([]DistributionTotal, 0, len(byCurrency))
	for cur, amount := range byCurrency {
		result = append(result, DistributionTotal{Currency: cur, Amount: amount})
	}

	slices.SortFunc(result, func(a, b DistributionTotal) int {
		return cmp.Compare(a.Currency, b.Currency)
	})
	return result
}
