package synth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"triagefm/internal/domain"
)

// Chat completion endpoints. DefaultOpenRouterURL is used when no base URL is
// configured.
const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultOpenAIURL     = "https://api.openai.com/v1"
)

// LangChainProvider adapts any langchaingo model.
type LangChainProvider struct {
	llm  llms.Model
	name string
}

// NewLangChainProvider wraps an already constructed model.
func NewLangChainProvider(llm llms.Model, name string) *LangChainProvider {
	return &LangChainProvider{llm: llm, name: name}
}

// NewOpenAICompatible builds a provider for OpenRouter, OpenAI or any other
// server speaking the chat completions API.
func NewOpenAICompatible(name, apiKey, baseURL, model string, client *http.Client) (*LangChainProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithBaseURL(baseURL),
	}
	if client != nil {
		opts = append(opts, openai.WithHTTPClient(client))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", name, err)
	}
	return NewLangChainProvider(llm, name), nil
}

// NewOllama builds a provider for a local Ollama server.
func NewOllama(serverURL, model string) (*LangChainProvider, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return NewLangChainProvider(llm, "ollama"), nil
}

func (p *LangChainProvider) Name() string { return p.name }

// Generate sends one chat request and returns the first choice.
func (p *LangChainProvider) Generate(ctx context.Context, req Request) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}
	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}

	resp, err := p.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", domain.NewError(domain.KindMalformedResponse, nil, "response has no choices")
	}
	text := resp.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return "", domain.NewError(domain.KindMalformedResponse, nil, "first choice has no content")
	}
	return text, nil
}

// statusPattern finds the HTTP status langchaingo's openai client puts in
// its errors ("API returned unexpected status code: 429: ...").
var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

func classifyError(err error) error {
	msg := err.Error()
	status := 0
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		status, _ = strconv.Atoi(m[1])
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.NewError(domain.KindProviderUnavailable, err, "request aborted")
	case status == http.StatusTooManyRequests, strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return domain.NewError(domain.KindProviderRateLimited, err, "provider is rate limiting requests")
	case status != 0:
		return domain.NewError(domain.KindProviderUnavailable, err, "provider returned HTTP %d", status)
	case errors.Is(err, openai.ErrEmptyResponse), strings.Contains(msg, "empty response"):
		return domain.NewError(domain.KindMalformedResponse, err, "provider returned an empty response")
	default:
		return domain.NewError(domain.KindProviderUnavailable, err, "provider request failed")
	}
}
