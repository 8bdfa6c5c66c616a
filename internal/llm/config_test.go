package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
)

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:         ProviderOllama,
		Model:            "llama-test",
		BaseURL:          "http://127.0.0.1:1",
		RetryAttempts:    1,
		RetryDelay:       "250ms",
		Timeout:          "5s",
		Temperature:      0.6,
		MaxTokens:        1000,
		TopP:             1,
		FrequencyPenalty: 0.2,
	}
}

func TestManagerConfigFrom(t *testing.T) {
	cfg := testLLMConfig()
	cfg.FallbackProviders = []string{ProviderGemini}

	got := ManagerConfigFrom(cfg)

	assert.Equal(t, ProviderOllama, got.DefaultProvider)
	assert.Equal(t, []string{ProviderGemini}, got.FallbackProviders)
	assert.Equal(t, 1, got.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, got.RetryDelay)
	assert.Equal(t, 5*time.Second, got.Timeout)
}

func TestSamplingFrom(t *testing.T) {
	assert.Equal(t, DefaultSampling(), SamplingFrom(testLLMConfig()))
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig(testLLMConfig())
	require.NoError(t, err)

	for _, p := range []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGemini} {
		assert.True(t, m.IsProviderRegistered(p), p)
	}

	assert.Equal(t, []string{ProviderOllama}, m.GetAvailableProviders())
}

func TestNewManagerFromConfig_MissingKey(t *testing.T) {
	cfg := testLLMConfig()
	cfg.Provider = ProviderOpenAI
	cfg.BaseURL = ""

	_, err := NewManagerFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
}

func TestNewManagerFromConfig_FallbacksFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OLLAMA_BASE_URL", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg := testLLMConfig()
	cfg.FallbackProviders = []string{ProviderAnthropic}

	m, err := NewManagerFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{ProviderAnthropic, ProviderOllama}, m.GetAvailableProviders())
	assert.Equal(t, []string{ProviderOllama, ProviderAnthropic}, m.order())
}
