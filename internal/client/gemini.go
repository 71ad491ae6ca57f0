package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultGeminiModel answers with Google Search grounding.
const DefaultGeminiModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAnswerer implements Answerer with Gemini and the Google Search tool.
type GeminiAnswerer struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiAnswerer creates a Gemini client for the Gemini API backend.
func NewGeminiAnswerer(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiAnswerer, error) {
	if timeout == 0 {
		timeout = DefaultAnswerTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newGeminiAnswerer(client.Models, model, timeout), nil
}

func newGeminiAnswerer(models contentGenerator, model string, timeout time.Duration) *GeminiAnswerer {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiAnswerer{models: models, model: model, timeout: timeout}
}

// Answer asks Gemini with search grounding and collects the cited web sources.
func (g *GeminiAnswerer) Answer(ctx context.Context, system, prompt string) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &UpstreamError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("failed to call gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &UpstreamError{Provider: "gemini", StatusCode: http.StatusBadGateway, Body: "no candidates"}
	}

	candidate := resp.Candidates[0]

	var content string
	for _, part := range candidate.Content.Parts {
		content += part.Text
	}

	citations := []string{}
	if gm := candidate.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				citations = append(citations, chunk.Web.URI)
			}
		}
	}

	log.Debug().Str("model", g.model).Int("citations", len(citations)).Msg("Gemini answer received")

	return &Answer{Content: content, Citations: citations}, nil
}
