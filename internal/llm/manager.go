package llm

import (
	"context"
	"sort"
	"time"

	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/logging"
)

// Manager handles multiple LLM providers with an ordered fallback list
type Manager struct {
	providers  map[string]Service
	configured map[string]bool
	config     ManagerConfig
}

// ManagerConfig configures the LLM manager behavior
type ManagerConfig struct {
	DefaultProvider   string        `json:"default_provider"`
	FallbackProviders []string      `json:"fallback_providers"`
	RetryAttempts     int           `json:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay"`
	Timeout           time.Duration `json:"timeout"`
}

// NewManager creates a new LLM manager with the given configuration
func NewManager(config ManagerConfig) *Manager {
	return &Manager{
		providers:  make(map[string]Service),
		configured: make(map[string]bool),
		config:     config,
	}
}

// RegisterProvider registers a new LLM provider
func (m *Manager) RegisterProvider(name string, service Service) error {
	if name == "" {
		return errors.New(errors.ErrTypeConfig, "provider name cannot be empty")
	}

	if service == nil {
		return errors.New(errors.ErrTypeConfig, "service cannot be nil")
	}

	m.providers[name] = service

	return nil
}

// Configure configures a specific provider and marks it usable
func (m *Manager) Configure(config Config) error {
	if !m.IsProviderRegistered(config.Provider) {
		return errors.Newf(errors.ErrTypeConfig, "provider %s not registered", config.Provider)
	}

	if err := m.providers[config.Provider].Configure(config); err != nil {
		return err
	}

	m.configured[config.Provider] = true

	return nil
}

// Complete tries the default provider, then each fallback in order
func (m *Manager) Complete(ctx context.Context, prompt string, sampling Sampling) (string, error) {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	var lastErr error

	for _, name := range m.order() {
		provider := m.providers[name]

		text, err := m.tryProvider(ctx, provider, prompt, sampling)
		if err == nil {
			return text, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}

		logging.WithField("provider", name).WithError(err).Warn("LLM provider failed")
	}

	if lastErr == nil {
		return "", errors.New(errors.ErrTypeConfig, "no LLM provider is configured").
			WithSuggestion("Set SLIDEFILL_LLM_PROVIDER and SLIDEFILL_LLM_API_KEY")
	}

	if ctx.Err() != nil {
		return "", errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "language model call cancelled")
	}

	return "", errors.Wrap(lastErr, errors.ErrTypeLLM, "all LLM providers failed")
}

// order lists configured providers: the default first, then fallbacks, without repeats
func (m *Manager) order() []string {
	seen := make(map[string]bool)

	var names []string

	for _, name := range append([]string{m.config.DefaultProvider}, m.config.FallbackProviders...) {
		if name == "" || seen[name] || !m.configured[name] {
			continue
		}

		if _, ok := m.providers[name]; !ok {
			continue
		}

		seen[name] = true
		names = append(names, name)
	}

	return names
}

// tryProvider attempts one provider with retries
func (m *Manager) tryProvider(ctx context.Context, provider Service, prompt string, sampling Sampling) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.config.RetryDelay):
			}
		}

		text, err := provider.Complete(ctx, prompt, sampling)
		if err == nil {
			return text, nil
		}

		lastErr = err

		// Neither cancellation nor a bad credential improves on retry
		if ctx.Err() != nil || errors.IsType(err, errors.ErrTypeAuth) || errors.IsType(err, errors.ErrTypeConfig) {
			break
		}
	}

	return "", lastErr
}

// GetAvailableProviders returns the configured provider names
func (m *Manager) GetAvailableProviders() []string {
	var providers []string
	for name := range m.configured {
		providers = append(providers, name)
	}

	sort.Strings(providers)

	return providers
}

// IsProviderRegistered checks if a provider is registered
func (m *Manager) IsProviderRegistered(name string) bool {
	_, exists := m.providers[name]
	return exists
}

// DefaultManagerConfig returns a sensible default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultProvider: ProviderOpenAI,
		RetryAttempts:   2,
		RetryDelay:      time.Second * 2,
		Timeout:         time.Minute,
	}
}

var _ Service = (*Manager)(nil)
