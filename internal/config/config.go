package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envPrefix = "SLIDEFILL_"

// Config represents the application configuration
type Config struct {
	Dataset  DatasetConfig  `json:"dataset"`
	Filter   FilterConfig   `json:"filter"`
	Database DatabaseConfig `json:"database"`
	LLM      LLMConfig      `json:"llm"`
	Google   GoogleConfig   `json:"google"`
	Template TemplateConfig `json:"template"`
	Share    ShareConfig    `json:"share"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
	Debug    DebugConfig    `json:"debug"`
}

// DatasetConfig selects where records come from
type DatasetConfig struct {
	Source          string   `json:"source"           env:"DATASET_SOURCE"           envDefault:"sheets"` // sheets, csv
	SheetName       string   `json:"sheet_name"       env:"DATASET_SHEET_NAME"`
	SheetRange      string   `json:"sheet_range"      env:"DATASET_SHEET_RANGE"` // empty reads the first worksheet
	CSVPath         string   `json:"csv_path"         env:"DATASET_CSV_PATH"`
	RequiredColumns []string `json:"required_columns" env:"DATASET_REQUIRED_COLUMNS" envDefault:"ID,Name,Occupation,Country,Age" envSeparator:","`
}

// FilterConfig selects the filter backend
type FilterConfig struct {
	Backend string `json:"backend" env:"FILTER_BACKEND" envDefault:"memory"` // memory, duckdb
}

// DatabaseConfig represents the DuckDB configuration used by the SQL backend
type DatabaseConfig struct {
	Path           string `json:"path"            env:"DB_PATH"`
	MaxConnections int    `json:"max_connections" env:"DB_MAX_CONNECTIONS" envDefault:"1"`
	QueryTimeout   string `json:"query_timeout"   env:"DB_QUERY_TIMEOUT"   envDefault:"30s"`
}

// LLMConfig represents language-model configuration
type LLMConfig struct {
	Provider          string   `json:"provider"           env:"LLM_PROVIDER"           envDefault:"openai"` // openai, anthropic, ollama, gemini
	Model             string   `json:"model"              env:"LLM_MODEL"              envDefault:"gpt-4o-mini"`
	APIKey            string   `json:"api_key,omitempty"  env:"LLM_API_KEY"`
	BaseURL           string   `json:"base_url,omitempty" env:"LLM_BASE_URL"`
	FallbackProviders []string `json:"fallback_providers" env:"LLM_FALLBACK_PROVIDERS" envSeparator:","`
	RetryAttempts     int      `json:"retry_attempts"     env:"LLM_RETRY_ATTEMPTS"     envDefault:"2"`
	RetryDelay        string   `json:"retry_delay"        env:"LLM_RETRY_DELAY"        envDefault:"2s"`
	Timeout           string   `json:"timeout"            env:"LLM_TIMEOUT"            envDefault:"60s"`
	Temperature       float64  `json:"temperature"        env:"LLM_TEMPERATURE"        envDefault:"0.6"`
	MaxTokens         int      `json:"max_tokens"         env:"LLM_MAX_TOKENS"         envDefault:"1000"`
	TopP              float64  `json:"top_p"              env:"LLM_TOP_P"              envDefault:"1"`
	FrequencyPenalty  float64  `json:"frequency_penalty"  env:"LLM_FREQUENCY_PENALTY"  envDefault:"0.2"`
	PresencePenalty   float64  `json:"presence_penalty"   env:"LLM_PRESENCE_PENALTY"   envDefault:"0"`
}

// GoogleConfig represents Drive/Slides/Sheets access
type GoogleConfig struct {
	CredentialsFile string `json:"credentials_file" env:"GOOGLE_CREDENTIALS_FILE"`
	Endpoint        string `json:"endpoint"         env:"GOOGLE_ENDPOINT"`
}

// TemplateConfig describes the presentation template and its bindings
type TemplateConfig struct {
	ID           string   `json:"id"            env:"TEMPLATE_ID"`
	Placeholders []string `json:"placeholders"  env:"TEMPLATE_PLACEHOLDERS"  envDefault:"**Employee ID**=ID,**Employee Name**=Name,**Occupation**=Occupation,**Country**=Country,**Age**=Age" envSeparator:","`
	TitleColumns []string `json:"title_columns" env:"TEMPLATE_TITLE_COLUMNS" envDefault:"Name,ID"                                                                                           envSeparator:","`
}

// ShareConfig controls the grant workflow and its concurrency
type ShareConfig struct {
	Role        string `json:"role"         env:"SHARE_ROLE"         envDefault:"writer"`
	Workers     int    `json:"workers"      env:"SHARE_WORKERS"      envDefault:"4"`
	RateLimit   string `json:"rate_limit"   env:"SHARE_RATE_LIMIT"   envDefault:"100ms"` // token return interval
	BackoffBase string `json:"backoff_base" env:"SHARE_BACKOFF_BASE" envDefault:"1s"`
	MaxBackoff  string `json:"max_backoff"  env:"SHARE_MAX_BACKOFF"  envDefault:"30s"`
	MaxRetries  int    `json:"max_retries"  env:"SHARE_MAX_RETRIES"  envDefault:"5"`
}

// CacheConfig controls the on-disk cache of query translations
type CacheConfig struct {
	Enabled    bool   `json:"enabled"     env:"CACHE_ENABLED"     envDefault:"true"`
	Directory  string `json:"directory"   env:"CACHE_DIR"         envDefault:"~/.cache/slidefill/translations"`
	TTL        string `json:"ttl"         env:"CACHE_TTL"         envDefault:"168h"`
	MaxEntries int    `json:"max_entries" env:"CACHE_MAX_ENTRIES" envDefault:"500"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`   // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/slidefill/logs/slidefill.log"`
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" env:"DEBUG"   envDefault:"false"`
	Verbose bool `json:"verbose" env:"VERBOSE" envDefault:"false"`
}

// LoadConfig loads configuration from file, environment variables, and command-line flags
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence, lowest first: defaults, config file, .env, environment, flags.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	// A missing .env is fine; existing environment variables win over it
	_ = godotenv.Load()

	config, err := Defaults()
	if err != nil {
		return nil, err
	}

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Defaults were applied already, so only variables that are actually set count here
	if err := env.ParseWithOptions(config, env.Options{
		Prefix:              envPrefix,
		DefaultValueTagName: "envNoDefault",
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.ExpandAllPaths()

	return config, nil
}

// Defaults returns the configuration described by the envDefault tags alone
func Defaults() (*Config, error) {
	config := &Config{}
	if err := env.ParseWithOptions(config, env.Options{
		Prefix:      envPrefix,
		Environment: map[string]string{},
	}); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "backend":
			if str, ok := value.(string); ok && str != "" {
				config.Filter.Backend = str
			}
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Path = str
			}
		case "llm-provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "llm-model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "credentials":
			if str, ok := value.(string); ok && str != "" {
				config.Google.CredentialsFile = str
			}
		case "template":
			if str, ok := value.(string); ok && str != "" {
				config.Template.ID = str
			}
		case "workers":
			if n, ok := value.(int); ok {
				config.Share.Workers = n
			}
		case "no-cache":
			if b, ok := value.(bool); ok && b {
				config.Cache.Enabled = false
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				config.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				config.Debug.Enabled = b
			}
		default:
			return fmt.Errorf("unknown override: %s", key)
		}
	}

	return nil
}

// mergeConfigs merges non-zero source values into target
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	if err := oneOf("log level", config.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}

	if err := oneOf("log format", config.Logging.Format, "text", "json"); err != nil {
		return err
	}

	if err := oneOf("log output", config.Logging.Output, "stdout", "stderr", "file"); err != nil {
		return err
	}

	if err := oneOf("dataset source", config.Dataset.Source, "sheets", "csv"); err != nil {
		return err
	}

	if err := oneOf("filter backend", config.Filter.Backend, "memory", "duckdb"); err != nil {
		return err
	}

	if err := oneOf("llm provider", config.LLM.Provider, "openai", "anthropic", "ollama", "gemini"); err != nil {
		return err
	}

	for _, p := range config.LLM.FallbackProviders {
		if err := oneOf("llm fallback provider", p, "openai", "anthropic", "ollama", "gemini"); err != nil {
			return err
		}
	}

	if err := oneOf("share role", config.Share.Role, "reader", "commenter", "writer"); err != nil {
		return err
	}

	durations := map[string]string{
		"database query timeout": config.Database.QueryTimeout,
		"llm retry delay":        config.LLM.RetryDelay,
		"llm timeout":            config.LLM.Timeout,
		"share rate limit":       config.Share.RateLimit,
		"share backoff base":     config.Share.BackoffBase,
		"share max backoff":      config.Share.MaxBackoff,
		"cache ttl":              config.Cache.TTL,
	}
	for name, value := range durations {
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive: %d", config.Database.MaxConnections)
	}

	if config.Share.Workers <= 0 {
		return fmt.Errorf("share workers must be positive: %d", config.Share.Workers)
	}

	if config.LLM.RetryAttempts < 0 || config.Share.MaxRetries < 0 {
		return fmt.Errorf("retry counts cannot be negative")
	}

	if config.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max entries cannot be negative: %d", config.Cache.MaxEntries)
	}

	if config.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm max tokens must be positive: %d", config.LLM.MaxTokens)
	}

	for _, p := range config.Template.Placeholders {
		placeholder, column, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(placeholder) == "" || strings.TrimSpace(column) == "" {
			return fmt.Errorf("invalid template placeholder binding: %q (want placeholder=Column)", p)
		}
	}

	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}

	return fmt.Errorf("invalid %s: %s (must be one of %s)", name, value, strings.Join(allowed, ", "))
}

// Duration parses a duration already checked by validateConfig
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// Masked returns a copy safe to print
func (c *Config) Masked() *Config {
	clone := *c
	if clone.LLM.APIKey != "" {
		clone.LLM.APIKey = "****"
	}

	return &clone
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config.Masked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv(envPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Database.Path = expandPath(c.Database.Path)
	c.Dataset.CSVPath = expandPath(c.Dataset.CSVPath)
	c.Google.CredentialsFile = expandPath(c.Google.CredentialsFile)
	c.Logging.File = expandPath(c.Logging.File)
	c.Cache.Directory = expandPath(c.Cache.Directory)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/slidefill"
	}

	return filepath.Join(homeDir, ".config", "slidefill")
}
