package synth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"triagefm/internal/domain"
)

// GeminiProvider calls the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini API client. baseURL and httpClient are
// optional.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Generate sends the prompt with the system message as system instruction.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.User), cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", domain.NewError(domain.KindMalformedResponse, nil, "gemini returned no candidates")
	}
	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", domain.NewError(domain.KindMalformedResponse, nil, "gemini candidate has no text")
	}
	return text.String(), nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || strings.Contains(apiErr.Status, "RESOURCE_EXHAUSTED") ||
			strings.Contains(apiErr.Message, "RESOURCE_EXHAUSTED") {
			return domain.NewError(domain.KindProviderRateLimited, err, "gemini quota exhausted")
		}
		return domain.NewError(domain.KindProviderUnavailable, err, "gemini returned HTTP %d", apiErr.Code)
	}
	return classifyError(err)
}
