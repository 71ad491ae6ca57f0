package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Answer is a search-grounded model answer.
type Answer struct {
	Content   string
	Citations []string
}

// Answerer asks a search-grounded model a question.
type Answerer interface {
	Answer(ctx context.Context, system, prompt string) (*Answer, error)
}

// PerplexityConfig configures the Perplexity client.
type PerplexityConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// PerplexityClient implements Answerer with the Perplexity chat completions API.
type PerplexityClient struct {
	cfg        PerplexityConfig
	httpClient *http.Client
}

// NewPerplexityClient creates a Perplexity client.
func NewPerplexityClient(cfg PerplexityConfig) *PerplexityClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultAnswerTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &PerplexityClient{cfg: cfg, httpClient: newHTTPClient(cfg.Timeout)}
}

type perplexityResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Answer sends one system and one user message and returns the first choice.
func (c *PerplexityClient) Answer(ctx context.Context, system, prompt string) (*Answer, error) {
	messages := make([]ChatMessage, 0, 2)
	if system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatCompletionRequest{Model: c.cfg.Model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call perplexity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newUpstreamError("perplexity", resp)
	}

	var pr perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode perplexity response: %w", err)
	}

	if len(pr.Choices) == 0 {
		return nil, errors.New("perplexity returned no choices")
	}

	log.Debug().
		Str("model", c.cfg.Model).
		Int("citations", len(pr.Citations)).
		Dur("duration", time.Since(start)).
		Msg("Search answer received")

	citations := pr.Citations
	if citations == nil {
		citations = []string{}
	}

	return &Answer{Content: pr.Choices[0].Message.Content, Citations: citations}, nil
}
