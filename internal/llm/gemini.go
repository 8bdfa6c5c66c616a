package llm

import (
	"context"
	"sync"

	"google.golang.org/genai"

	"github.com/kyleking/slidefill/internal/errors"
)

// GeminiClient implements Service with the Google GenAI SDK
type GeminiClient struct {
	mu     sync.Mutex
	config Config
	client *genai.Client
}

// NewGeminiClient creates an unconfigured Gemini client
func NewGeminiClient() *GeminiClient {
	return &GeminiClient{}
}

// Configure creates the underlying SDK client
func (g *GeminiClient) Configure(config Config) error {
	if config.APIKey == "" {
		return errors.New(errors.ErrTypeAuth, "API key is required for Gemini provider").
			WithSuggestion("Set SLIDEFILL_LLM_API_KEY or GEMINI_API_KEY")
	}

	if config.Model == "" {
		config.Model = DefaultModel(ProviderGemini)
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "failed to create GenAI client")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.config = config
	g.client = client

	return nil
}

// Complete generates a single text answer for prompt
func (g *GeminiClient) Complete(ctx context.Context, prompt string, sampling Sampling) (string, error) {
	g.mu.Lock()
	client, model := g.client, g.config.Model
	g.mu.Unlock()

	if client == nil {
		return "", errors.New(errors.ErrTypeConfig, "Gemini client not configured")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(sampling.Temperature)),
		TopP:             genai.Ptr(float32(sampling.TopP)),
		PresencePenalty:  genai.Ptr(float32(sampling.PresencePenalty)),
		FrequencyPenalty: genai.Ptr(float32(sampling.FrequencyPenalty)),
	}
	if sampling.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(sampling.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "request cancelled")
		}

		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == 429 {
			return "", errors.Wrap(err, errors.ErrTypeRateLimit, "Gemini rate limit exceeded")
		}

		return "", errors.Wrap(err, errors.ErrTypeLLM, "GenAI generate failed")
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New(errors.ErrTypeLLM, "no response from Gemini")
	}

	return text, nil
}

var (
	_ Service = (*Client)(nil)
	_ Service = (*GeminiClient)(nil)
)
