package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kyleking/slidefill/internal/errors"
)

const (
	defaultOpenAIURL    = "https://api.openai.com/v1"
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	defaultOllamaURL    = "http://localhost:11434"
	anthropicVersion    = "2023-06-01"
)

// Client implements Service over the OpenAI, Anthropic and Ollama HTTP APIs
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new LLM client with the given configuration
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Configure updates the client configuration
func (c *Client) Configure(config Config) error {
	if config.Provider == "" {
		return errors.NewConfigError("provider is required", "llm.provider")
	}

	if config.Model == "" {
		config.Model = DefaultModel(config.Provider)
	}

	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			return errors.New(errors.ErrTypeAuth, "API key is required for OpenAI provider").
				WithSuggestion("Set SLIDEFILL_LLM_API_KEY or OPENAI_API_KEY")
		}

		if config.BaseURL == "" {
			config.BaseURL = defaultOpenAIURL
		}
	case ProviderAnthropic:
		if config.APIKey == "" {
			return errors.New(errors.ErrTypeAuth, "API key is required for Anthropic provider").
				WithSuggestion("Set SLIDEFILL_LLM_API_KEY or ANTHROPIC_API_KEY")
		}

		if config.BaseURL == "" {
			config.BaseURL = defaultAnthropicURL
		}
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = defaultOllamaURL
		}
	default:
		return errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", config.Provider)
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	c.config = config

	return nil
}

// Complete sends prompt to the configured provider and returns its text
func (c *Client) Complete(ctx context.Context, prompt string, sampling Sampling) (string, error) {
	switch c.config.Provider {
	case "":
		return "", errors.New(errors.ErrTypeConfig, "LLM client not configured")
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, prompt, sampling)
	case ProviderAnthropic:
		return c.completeAnthropic(ctx, prompt, sampling)
	case ProviderOllama:
		return c.completeOllama(ctx, prompt, sampling)
	default:
		return "", errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", c.config.Provider)
	}
}

// OpenAI API structures
type openAIRequest struct {
	Model            string          `json:"model"`
	Messages         []openAIMessage `json:"messages"`
	Temperature      float64         `json:"temperature"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	TopP             float64         `json:"top_p"`
	FrequencyPenalty float64         `json:"frequency_penalty"`
	PresencePenalty  float64         `json:"presence_penalty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string, sampling Sampling) (string, error) {
	reqBody := openAIRequest{
		Model: c.config.Model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:      sampling.Temperature,
		MaxTokens:        sampling.MaxTokens,
		TopP:             sampling.TopP,
		FrequencyPenalty: sampling.FrequencyPenalty,
		PresencePenalty:  sampling.PresencePenalty,
	}

	respBody, err := c.post(ctx, "/chat/completions", reqBody, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeLLM, "failed to parse OpenAI response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeLLM, "OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", errors.New(errors.ErrTypeLLM, "no response from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) completeAnthropic(ctx context.Context, prompt string, sampling Sampling) (string, error) {
	maxTokens := sampling.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultSampling().MaxTokens
	}

	// Anthropic accepts temperature in [0, 1] and has no penalty parameters
	reqBody := anthropicRequest{
		Model:       c.config.Model,
		MaxTokens:   maxTokens,
		Temperature: min(sampling.Temperature, 1),
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	respBody, err := c.post(ctx, "/messages", reqBody, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeLLM, "failed to parse Anthropic response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypeLLM, "Anthropic API error: %s", response.Error.Message)
	}

	var sb strings.Builder

	for _, block := range response.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", errors.New(errors.ErrTypeLLM, "no response from Anthropic")
	}

	return sb.String(), nil
}

// Ollama API structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	NumPredict       int     `json:"num_predict,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) completeOllama(ctx context.Context, prompt string, sampling Sampling) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature:      sampling.Temperature,
			TopP:             sampling.TopP,
			NumPredict:       sampling.MaxTokens,
			FrequencyPenalty: sampling.FrequencyPenalty,
			PresencePenalty:  sampling.PresencePenalty,
		},
	}

	respBody, err := c.post(ctx, "/api/generate", reqBody, nil)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeLLM, "failed to parse Ollama response")
	}

	if response.Error != "" {
		return "", errors.Newf(errors.ErrTypeLLM, "Ollama API error: %s", response.Error)
	}

	return response.Response, nil
}

// post sends a JSON request and classifies non-200 responses
func (c *Client) post(ctx context.Context, endpoint string, reqBody interface{}, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "request cancelled")
		}

		return nil, errors.Wrap(err, errors.ErrTypeNetwork, "failed to make request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeNetwork, "failed to read response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Newf(errors.ErrTypeRateLimit, "%s rate limit exceeded", c.config.Provider)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Newf(errors.ErrTypeAuth, "%s rejected the credentials (status %d)", c.config.Provider, resp.StatusCode).
			WithSuggestion("Check the configured API key")
	default:
		return nil, errors.Newf(errors.ErrTypeLLM, "API request failed with status %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return fmt.Sprintf("%s...", s[:n])
}
