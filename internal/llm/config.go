package llm

import (
	"os"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/logging"
)

// ManagerConfigFrom converts the application LLM settings into manager settings
func ManagerConfigFrom(cfg config.LLMConfig) ManagerConfig {
	return ManagerConfig{
		DefaultProvider:   cfg.Provider,
		FallbackProviders: cfg.FallbackProviders,
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        config.Duration(cfg.RetryDelay),
		Timeout:           config.Duration(cfg.Timeout),
	}
}

// SamplingFrom extracts the generation parameters from the application settings
func SamplingFrom(cfg config.LLMConfig) Sampling {
	return Sampling{
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
	}
}

// SetupDefaultProviders registers every supported provider, unconfigured
func SetupDefaultProviders(manager *Manager) error {
	providers := map[string]Service{
		ProviderOpenAI:    NewClient(Config{}),
		ProviderAnthropic: NewClient(Config{}),
		ProviderOllama:    NewClient(Config{}),
		ProviderGemini:    NewGeminiClient(),
	}

	for _, name := range []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGemini} {
		if err := manager.RegisterProvider(name, providers[name]); err != nil {
			return errors.Wrapf(err, errors.ErrTypeConfig, "failed to register %s provider", name)
		}
	}

	return nil
}

// ConfigureFromEnvironment configures fallback providers from their conventional
// environment variables. Providers without credentials stay unconfigured.
func ConfigureFromEnvironment(manager *Manager, skip string) error {
	candidates := []Config{
		{Provider: ProviderOpenAI, APIKey: os.Getenv("OPENAI_API_KEY")},
		{Provider: ProviderAnthropic, APIKey: os.Getenv("ANTHROPIC_API_KEY")},
		{Provider: ProviderGemini, APIKey: os.Getenv("GEMINI_API_KEY")},
		{Provider: ProviderOllama, BaseURL: os.Getenv("OLLAMA_BASE_URL"), Model: os.Getenv("OLLAMA_MODEL")},
	}

	for _, c := range candidates {
		if c.Provider == skip || (c.APIKey == "" && c.BaseURL == "") {
			continue
		}

		if err := manager.Configure(c); err != nil {
			return errors.Wrapf(err, errors.ErrTypeConfig, "failed to configure %s", c.Provider)
		}
	}

	return nil
}

// NewManagerFromConfig creates a manager with the configured default provider
// and any fallbacks that have credentials in the environment
func NewManagerFromConfig(cfg config.LLMConfig) (*Manager, error) {
	manager := NewManager(ManagerConfigFrom(cfg))

	if err := SetupDefaultProviders(manager); err != nil {
		return nil, err
	}

	if len(cfg.FallbackProviders) > 0 {
		if err := ConfigureFromEnvironment(manager, cfg.Provider); err != nil {
			return nil, err
		}
	}

	primary := Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}

	if err := manager.Configure(primary); err != nil {
		return nil, err
	}

	logging.Debugf("LLM providers ready: %v", manager.GetAvailableProviders())

	return manager, nil
}
