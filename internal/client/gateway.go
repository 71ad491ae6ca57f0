package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ChatMessage is one message of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GatewayConfig configures the AI gateway client.
type GatewayConfig struct {
	// BaseURL is the OpenAI-compatible API root, e.g. https://ai.gateway.example.com/v1.
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// Gateway streams chat completions from an OpenAI-compatible AI gateway.
type Gateway struct {
	cfg        GatewayConfig
	httpClient *http.Client
}

// NewGateway creates a gateway client.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultStreamTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Gateway{cfg: cfg, httpClient: newHTTPClient(cfg.Timeout)}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// StreamChat starts a streamed completion and returns the text/event-stream
// body. The caller must close it. A non-2xx response is returned as *UpstreamError.
func (g *Gateway) StreamChat(ctx context.Context, messages []ChatMessage) (io.ReadCloser, error) {
	all := make([]ChatMessage, 0, len(messages)+1)
	if g.cfg.SystemPrompt != "" {
		all = append(all, ChatMessage{Role: "system", Content: g.cfg.SystemPrompt})
	}
	all = append(all, messages...)

	body, err := json.Marshal(chatCompletionRequest{Model: g.cfg.Model, Messages: all, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call AI gateway: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newUpstreamError("ai gateway", resp)
	}

	log.Debug().
		Str("model", g.cfg.Model).
		Int("messages", len(messages)).
		Dur("time_to_headers", time.Since(start)).
		Msg("Chat stream started")

	return resp.Body, nil
}
