package llm

import (
	"context"
)

// Service defines the interface for LLM operations
type Service interface {
	// Complete sends a single prompt and returns the raw text of the answer
	Complete(ctx context.Context, prompt string, sampling Sampling) (string, error)
	Configure(config Config) error
}

// Config represents LLM service configuration
type Config struct {
	Provider string            `json:"provider"` // openai, anthropic, ollama, gemini
	Model    string            `json:"model"`
	APIKey   string            `json:"api_key,omitempty"`
	BaseURL  string            `json:"base_url,omitempty"`
	Options  map[string]string `json:"options,omitempty"`
}

// Sampling holds the generation parameters passed with every completion
type Sampling struct {
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// DefaultSampling matches the settings the translator was tuned with
func DefaultSampling() Sampling {
	return Sampling{
		Temperature:      0.6,
		MaxTokens:        1000,
		TopP:             1,
		FrequencyPenalty: 0.2,
		PresencePenalty:  0,
	}
}

// Provider constants for different LLM providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// Model constants for common models
const (
	ModelGPT4oMini   = "gpt-4o-mini"
	ModelClaudeHaiku = "claude-3-5-haiku-latest"
	ModelLlama3      = "llama3.1"
	ModelGeminiFlash = "gemini-2.5-flash"
)

// DefaultModel returns the model used for provider when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return ModelGPT4oMini
	case ProviderAnthropic:
		return ModelClaudeHaiku
	case ProviderOllama:
		return ModelLlama3
	case ProviderGemini:
		return ModelGeminiFlash
	default:
		return ""
	}
}
