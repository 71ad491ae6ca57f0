package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/telemetry"
)

type newsRequest struct {
	Query string `json:"query"`
}

type newsResponse struct {
	Success   bool     `json:"success"`
	Content   string   `json:"content,omitempty"`
	Citations []string `json:"citations,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		s.failNews(w, r, err)
		return
	}

	// the body is optional
	var req newsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Debug().Err(err).Msg("Ignoring unreadable news request body")
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = defaultNewsQuery
	}

	start := time.Now()
	answer, err := s.Answerer.Answer(r.Context(), newsSystemPrompt, query)
	telemetry.GetMetrics().UpstreamDuration.Record(r.Context(), float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.failNews(w, r, err)
		return
	}

	citations := answer.Citations
	if citations == nil {
		citations = []string{}
	}

	if s.News != nil {
		row := &models.MarketNews{
			NewsID:    uuid.New(),
			Content:   answer.Content,
			Citations: citations,
			FetchedAt: s.now().UTC(),
		}
		if err := s.News.InsertMarketNews(r.Context(), row); err != nil {
			log.Warn().Err(err).Msg("Failed to store market news")
		}
	}

	writeJSON(w, http.StatusOK, newsResponse{Success: true, Content: answer.Content, Citations: citations})
}

// failNews writes the {success:false, error} body used by the news relay.
// Upstream failures, rate limits included, are reported as 500.
func (s *Server) failNews(w http.ResponseWriter, r *http.Request, err error) {
	countError(r.Context(), "news")

	status := statusFor(err)
	var upstreamErr *client.UpstreamError
	if errors.As(err, &upstreamErr) {
		status = http.StatusInternalServerError
	}
	log.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("News relay failed")

	writeJSON(w, status, newsResponse{Success: false, Error: messageFor(err)})
}
