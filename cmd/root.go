package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/formatter"
	"github.com/kyleking/slidefill/internal/logging"
)

type configKey struct{}

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	logLevel    string
	backend     string
	dbPath      string
	llmProvider string
	llmModel    string
	credentials string
	output      string
	noCache     bool
	verbose     bool
	debug       bool
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "slidefill",
		Short: "Fill a slide template for every matching row of a sheet and share the copies",
		Long: `slidefill loads a table from a Google Sheet or a CSV file, selects rows by name,
by parameter ranges and sets, or by a natural-language request, and creates one
populated copy of a Google Slides template per selected row. Each copy is shared
with a single recipient without a notification email.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd, opts)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = logging.GetLogger().Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.backend, "backend", "", "Filter backend: memory or duckdb")
	flags.StringVar(&opts.dbPath, "db-path", "", "DuckDB database file (default in-memory)")
	flags.StringVar(&opts.llmProvider, "llm-provider", "", "Language model provider: openai, anthropic, ollama or gemini")
	flags.StringVar(&opts.llmModel, "llm-model", "", "Language model name")
	flags.StringVar(&opts.credentials, "credentials", "", "Google service account key file")
	flags.StringVarP(&opts.output, "output", "o", "table", "Output format: table or json")
	flags.BoolVar(&opts.noCache, "no-cache", false, "Always ask the language model instead of reusing cached translations")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show the cleaning report and extra detail")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newFilterCommand())
	root.AddCommand(newShareCommand())
	root.AddCommand(newConfigCommand())
	root.AddCommand(newCacheCommand())

	return root
}

// Execute runs the CLI and prints structured errors with their suggestions
func Execute() error {
	// Ctrl-C cancels the run; commands still print what they finished
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()

	err := root.ExecuteContext(ctx)
	if err != nil {
		printError(root.ErrOrStderr(), err)
	}

	return err
}

func setup(cmd *cobra.Command, opts *globalOptions) error {
	if _, err := formatter.ParseFormat(opts.output); err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "invalid --output")
	}

	overrides := map[string]interface{}{
		"log-level":    opts.logLevel,
		"backend":      opts.backend,
		"db-path":      opts.dbPath,
		"llm-provider": opts.llmProvider,
		"llm-model":    opts.llmModel,
		"credentials":  opts.credentials,
		"no-cache":     opts.noCache,
	}

	// Command-local flags that map onto configuration
	if f := cmd.Flags().Lookup("template"); f != nil && f.Changed {
		overrides["template"] = f.Value.String()
	}

	if f := cmd.Flags().Lookup("workers"); f != nil && f.Changed {
		workers, err := cmd.Flags().GetInt("workers")
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeConfig, "invalid --workers")
		}

		overrides["workers"] = workers
	}

	if cmd.Flags().Changed("verbose") {
		overrides["verbose"] = opts.verbose
	}

	if cmd.Flags().Changed("debug") {
		overrides["debug"] = opts.debug
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration").
			WithSuggestion("Run 'slidefill config' to inspect the active settings")
	}

	if cfg.Debug.Enabled {
		cfg.Logging.Level = "debug"
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.ErrorWithErr("Failed to initialize logger, using fallback", err)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))

	return nil
}

// GetConfigFromContext returns the configuration loaded by the root command
func GetConfigFromContext(cmd *cobra.Command) (*config.Config, error) {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok && cfg != nil {
		return cfg, nil
	}

	return nil, errors.NewConfigError("configuration not loaded", "")
}

func outputFormat(cmd *cobra.Command) formatter.OutputFormat {
	value, _ := cmd.Flags().GetString("output")
	format, _ := formatter.ParseFormat(value)

	return format
}

func printError(w io.Writer, err error) {
	if w == nil {
		w = os.Stderr
	}

	fmt.Fprintln(w, pterm.Error.Sprint(err.Error()))

	for _, s := range errors.Suggestions(err) {
		fmt.Fprintln(w, "  - "+s)
	}
}
