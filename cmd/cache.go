package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kyleking/slidefill/internal/cache"
	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/formatter"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or empty the translation cache",
		Long: `Answers from the language model are cached on disk per model and request so
repeated --query runs do not call the model again.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache location and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}

			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if outputFormat(cmd) == formatter.FormatJSON {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return errors.Wrap(err, errors.ErrTypeInternal, "failed to encode cache stats")
				}

				fmt.Fprintln(cmd.OutOrStdout(), string(data))

				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Directory: %s\n", stats.Directory)
			fmt.Fprintf(w, "Entries: %d (%d expired)\n", stats.Entries, stats.Expired)
			fmt.Fprintf(w, "Size: %d bytes\n", stats.Bytes)

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove expired or unreadable cached translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}

			removed, err := c.Cleanup(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired translation(s) from %s\n", removed, c.Directory())

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached translation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCache(cmd)
			if err != nil {
				return err
			}

			removed, err := c.Clear(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached translation(s) from %s\n", removed, c.Directory())

			return nil
		},
	})

	return cmd
}

// openCache opens the configured cache directory even when lookups are disabled
func openCache(cmd *cobra.Command) (*cache.FileCache, error) {
	cfg, err := GetConfigFromContext(cmd)
	if err != nil {
		return nil, err
	}

	return cache.NewFileCache(cfg.Cache.Directory, cfg.Cache.MaxEntries, config.Duration(cfg.Cache.TTL))
}
