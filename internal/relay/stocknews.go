package relay

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
	"github.com/wolfeidau/clientportal/internal/telemetry"
)

// StockNewsRefresher regenerates the news bullets for every tracked stock.
type StockNewsRefresher struct {
	answerer client.Answerer
	stocks   store.StockStore
	now      func() time.Time
}

// NewStockNewsRefresher creates a refresher.
func NewStockNewsRefresher(answerer client.Answerer, stocks store.StockStore) *StockNewsRefresher {
	return &StockNewsRefresher{answerer: answerer, stocks: stocks, now: time.Now}
}

// Refresh asks for news on all picks in one prompt and replaces the stored
// news with the result. It returns the number of rows written. If the answer
// cannot be parsed nothing is written.
func (r *StockNewsRefresher) Refresh(ctx context.Context) (int, error) {
	picks, err := r.stocks.ListPicks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stock picks: %w", err)
	}

	if len(picks) == 0 {
		log.Info().Msg("No stock picks to refresh")
		return 0, nil
	}

	names := make([]string, len(picks))
	for i, p := range picks {
		names[i] = p.StockName
	}

	start := time.Now()
	answer, err := r.answerer.Answer(ctx, stockNewsSystemPrompt, stockNewsPrompt(names))
	telemetry.GetMetrics().UpstreamDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return 0, err
	}

	entries, err := ParseStockNews(answer.Content)
	if err != nil {
		return 0, err
	}

	rows := matchStockNews(picks, entries, answer.Citations, r.now().UTC())

	if err := r.stocks.ReplaceNews(ctx, rows); err != nil {
		return 0, fmt.Errorf("failed to store stock news: %w", err)
	}

	telemetry.GetMetrics().StockNewsRowsWritten.Add(ctx, int64(len(rows)))

	log.Info().
		Int("picks", len(picks)).
		Int("entries", len(entries)).
		Int("rows", len(rows)).
		Msg("Refreshed stock news")

	return len(rows), nil
}

// matchStockNews pairs entries with picks by stock name. Entries for unknown
// stocks are ignored and picks without an entry get no row.
func matchStockNews(picks []*models.StockPick, entries []StockNewsEntry, citations []string, fetchedAt time.Time) []*models.StockPickNews {
	rows := make([]*models.StockPickNews, 0, len(entries))
	seen := make(map[uuid.UUID]bool, len(picks))

	for _, entry := range entries {
		name := strings.TrimSpace(entry.StockName)

		for _, pick := range picks {
			if seen[pick.StockPickID] || !strings.EqualFold(pick.StockName, name) {
				continue
			}
			seen[pick.StockPickID] = true

			bullets := entry.Bullets
			if bullets == nil {
				bullets = []string{}
			}

			rows = append(rows, &models.StockPickNews{
				NewsID:      uuid.New(),
				StockPickID: pick.StockPickID,
				StockName:   pick.StockName,
				NewsBullets: bullets,
				Citations:   citations,
				FetchedAt:   fetchedAt,
			})
			break
		}
	}

	return rows
}

type stockNewsResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

func (s *Server) handleStockNews(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		s.fail(w, r, "stock-news", err)
		return
	}

	count, err := s.stockNews.Refresh(r.Context())
	if err != nil {
		s.fail(w, r, "stock-news", err)
		return
	}

	writeJSON(w, http.StatusOK, stockNewsResponse{Success: true, Count: count})
}
