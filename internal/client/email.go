package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Email is a single-recipient message.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, email *Email) (string, error)
}

// ResendConfig configures the Resend client.
type ResendConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// MaxTries bounds delivery attempts for rate-limited or failed sends.
	MaxTries uint

	// InitialInterval is the first retry delay; it grows exponentially.
	InitialInterval time.Duration
}

// ResendClient implements Mailer with the Resend HTTP API.
type ResendClient struct {
	cfg        ResendConfig
	httpClient *http.Client
}

// NewResendClient creates a Resend client.
func NewResendClient(cfg ResendConfig) *ResendClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultAnswerTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &ResendClient{cfg: cfg, httpClient: newHTTPClient(cfg.Timeout)}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers email and returns the provider's message ID. Rate limiting
// and server errors are retried with exponential backoff.
func (c *ResendClient) Send(ctx context.Context, email *Email) (string, error) {
	body, err := json.Marshal(resendRequest{
		From:    email.From,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode email: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval

	id, err := backoff.Retry(ctx, func() (string, error) {
		return c.send(ctx, body)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("retry_in", next).Msg("Retrying email send")
		}),
	)
	if err != nil {
		return "", err
	}

	return id, nil
}

func (c *ResendClient) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create email request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upstreamErr := newUpstreamError("resend", resp)
		if !upstreamErr.Temporary() {
			return "", backoff.Permanent(upstreamErr)
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return "", errors.Join(upstreamErr, backoff.RetryAfter(secs))
		}
		return "", upstreamErr
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to decode resend response: %w", err))
	}

	return out.ID, nil
}
