package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/clientportal/internal/client"
	"github.com/wolfeidau/clientportal/internal/models"
	"github.com/wolfeidau/clientportal/internal/store"
	"github.com/wolfeidau/clientportal/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is how many emails are sent concurrently.
	DefaultBatchSize = 10

	// DefaultBatchPause is the wait between batches.
	DefaultBatchPause = time.Second
)

// Newsletter is a mailing to every approved client.
type Newsletter struct {
	Subject      string
	HTML         string
	NewsletterID *uuid.UUID
}

// Validate checks the required fields.
func (n *Newsletter) Validate() error {
	if strings.TrimSpace(n.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrBadRequest)
	}
	if strings.TrimSpace(n.HTML) == "" {
		return fmt.Errorf("%w: htmlContent is required", ErrBadRequest)
	}
	return nil
}

// SendResult summarises a newsletter run.
type SendResult struct {
	Sent  int
	Total int
}

// NewsletterConfig configures a NewsletterSender.
type NewsletterConfig struct {
	From       string
	BatchSize  int
	BatchPause time.Duration
}

// NewsletterSender delivers a newsletter one email per recipient.
type NewsletterSender struct {
	mailer   client.Mailer
	profiles store.ProfileStore
	news     store.NewsStore
	cfg      NewsletterConfig
	now      func() time.Time
}

// NewNewsletterSender creates a sender. A negative BatchPause disables the pause.
func NewNewsletterSender(mailer client.Mailer, profiles store.ProfileStore, news store.NewsStore, cfg NewsletterConfig) *NewsletterSender {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchPause == 0 {
		cfg.BatchPause = DefaultBatchPause
	}
	return &NewsletterSender{mailer: mailer, profiles: profiles, news: news, cfg: cfg, now: time.Now}
}

// Send emails every approved profile that has an address. Failed recipients
// are logged and skipped so one bad address cannot stop the run.
func (n *NewsletterSender) Send(ctx context.Context, letter *Newsletter) (*SendResult, error) {
	if err := letter.Validate(); err != nil {
		return nil, err
	}

	profiles, err := n.profiles.ListApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}

	recipients := make([]*models.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.HasEmail() {
			recipients = append(recipients, p)
		}
	}

	var sent atomic.Int64
	metrics := telemetry.GetMetrics()

	for start := 0; start < len(recipients); start += n.cfg.BatchSize {
		if start > 0 && n.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(n.cfg.BatchPause):
			}
		}

		batch := recipients[start:min(start+n.cfg.BatchSize, len(recipients))]

		var g errgroup.Group
		for _, p := range batch {
			g.Go(func() error {
				id, err := n.mailer.Send(ctx, &client.Email{
					From:    n.cfg.From,
					To:      p.Email,
					Subject: letter.Subject,
					HTML:    letter.HTML,
				})
				if err != nil {
					metrics.EmailsFailedTotal.Add(ctx, 1)
					log.Warn().Err(err).Str("user_id", p.UserID).Msg("Failed to send newsletter email")
					return nil
				}

				sent.Add(1)
				metrics.EmailsSentTotal.Add(ctx, 1)
				log.Debug().Str("user_id", p.UserID).Str("email_id", id).Msg("Sent newsletter email")
				return nil
			})
		}
		_ = g.Wait()
	}

	result := &SendResult{Sent: int(sent.Load()), Total: len(recipients)}

	if letter.NewsletterID != nil {
		err := n.news.MarkNewsletterSent(ctx, *letter.NewsletterID, result.Sent, n.now().UTC())
		switch {
		case errors.Is(err, store.ErrNewsletterNotFound):
			log.Warn().Str("newsletter_id", letter.NewsletterID.String()).Msg("Newsletter to mark as sent not found")
		case err != nil:
			log.Error().Err(err).Str("newsletter_id", letter.NewsletterID.String()).Msg("Failed to mark newsletter as sent")
		}
	}

	log.Info().Int("sent", result.Sent).Int("total", result.Total).Str("subject", letter.Subject).Msg("Newsletter delivered")

	return result, nil
}

type newsletterRequest struct {
	Subject      string     `json:"subject"`
	HTMLContent  string     `json:"htmlContent"`
	NewsletterID *uuid.UUID `json:"newsletterId,omitempty"`
}

type newsletterResponse struct {
	Success         bool `json:"success"`
	SentCount       int  `json:"sentCount"`
	TotalRecipients int  `json:"totalRecipients"`
}

func (s *Server) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		s.fail(w, r, "newsletter", err)
		return
	}

	admin, err := s.Profiles.HasRole(r.Context(), user.ID, models.RoleAdmin)
	if err != nil {
		s.fail(w, r, "newsletter", fmt.Errorf("failed to check role: %w", err))
		return
	}
	if !admin {
		s.fail(w, r, "newsletter", ErrForbidden)
		return
	}

	var req newsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, "newsletter", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	result, err := s.Newsletter.Send(r.Context(), &Newsletter{
		Subject:      req.Subject,
		HTML:         req.HTMLContent,
		NewsletterID: req.NewsletterID,
	})
	if err != nil {
		s.fail(w, r, "newsletter", err)
		return
	}

	writeJSON(w, http.StatusOK, newsletterResponse{
		Success:         true,
		SentCount:       result.Sent,
		TotalRecipients: result.Total,
	})
}
