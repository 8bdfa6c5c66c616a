package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/formatter"
)

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the active configuration",
		Long:  `Show the current active configuration including all settings from file, environment variables, and command-line flags. API keys are masked.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := GetConfigFromContext(cmd)
			if err != nil {
				return err
			}

			if outputFormat(cmd) == formatter.FormatJSON {
				return printConfigJSON(cmd.OutOrStdout(), cfg)
			}

			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	cfg = cfg.Masked()

	fmt.Fprintln(w, "====================")
	fmt.Fprintln(w, "Active Configuration:")

	fmt.Fprintln(w, "\nDataset:")
	fmt.Fprintf(w, "  Source: %s\n", cfg.Dataset.Source)
	fmt.Fprintf(w, "  Sheet: %s\n", orDash(cfg.Dataset.SheetName))
	fmt.Fprintf(w, "  Sheet Range: %s\n", orDefault(cfg.Dataset.SheetRange, "first worksheet"))
	fmt.Fprintf(w, "  CSV Path: %s\n", orDash(cfg.Dataset.CSVPath))
	fmt.Fprintf(w, "  Required Columns: %s\n", strings.Join(cfg.Dataset.RequiredColumns, ", "))

	fmt.Fprintln(w, "\nFilter:")
	fmt.Fprintf(w, "  Backend: %s\n", cfg.Filter.Backend)

	if strings.EqualFold(cfg.Filter.Backend, "duckdb") {
		fmt.Fprintf(w, "  Database: %s\n", orDefault(cfg.Database.Path, "in-memory"))
		fmt.Fprintf(w, "  Query Timeout: %s\n", cfg.Database.QueryTimeout)
	}

	fmt.Fprintln(w, "\nLanguage Model:")
	fmt.Fprintf(w, "  Provider: %s\n", cfg.LLM.Provider)
	fmt.Fprintf(w, "  Model: %s\n", cfg.LLM.Model)
	fmt.Fprintf(w, "  API Key: %s\n", orDefault(cfg.LLM.APIKey, "(from provider environment)"))

	if len(cfg.LLM.FallbackProviders) > 0 {
		fmt.Fprintf(w, "  Fallbacks: %s\n", strings.Join(cfg.LLM.FallbackProviders, ", "))
	}

	fmt.Fprintf(w, "  Temperature: %g\n", cfg.LLM.Temperature)
	fmt.Fprintf(w, "  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Fprintf(w, "  Timeout: %s\n", cfg.LLM.Timeout)

	fmt.Fprintln(w, "\nGoogle:")
	fmt.Fprintf(w, "  Credentials: %s\n", orDash(cfg.Google.CredentialsFile))

	fmt.Fprintln(w, "\nTemplate:")
	fmt.Fprintf(w, "  ID: %s\n", orDash(cfg.Template.ID))
	fmt.Fprintf(w, "  Title Columns: %s\n", strings.Join(cfg.Template.TitleColumns, ", "))

	for _, p := range cfg.Template.Placeholders {
		fmt.Fprintf(w, "  Binding: %s\n", p)
	}

	fmt.Fprintln(w, "\nShare:")
	fmt.Fprintf(w, "  Role: %s\n", cfg.Share.Role)
	fmt.Fprintf(w, "  Workers: %d\n", cfg.Share.Workers)
	fmt.Fprintf(w, "  Rate Limit: %s\n", cfg.Share.RateLimit)
	fmt.Fprintf(w, "  Max Retries: %d\n", cfg.Share.MaxRetries)

	fmt.Fprintln(w, "\nCache:")
	fmt.Fprintf(w, "  Enabled: %t\n", cfg.Cache.Enabled)
	fmt.Fprintf(w, "  Directory: %s\n", cfg.Cache.Directory)
	fmt.Fprintf(w, "  TTL: %s\n", cfg.Cache.TTL)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", cfg.Logging.File)
	}

	fmt.Fprintln(w, "\nDebug:")
	fmt.Fprintf(w, "  Enabled: %t\n", cfg.Debug.Enabled)
	fmt.Fprintf(w, "  Verbose: %t\n", cfg.Debug.Verbose)

	if cfg.Debug.Enabled {
		fmt.Fprintln(w, "\nRaw Configuration (JSON):")
		fmt.Fprintln(w, "==========================")

		return printConfigJSON(w, cfg)
	}

	return nil
}

func printConfigJSON(w io.Writer, cfg *config.Config) error {
	jsonData, err := json.MarshalIndent(cfg.Masked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	fmt.Fprintln(w, string(jsonData))

	return nil
}

func orDash(s string) string {
	return orDefault(s, "-")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}
