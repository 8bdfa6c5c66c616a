package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/formatter"
	"github.com/kyleking/slidefill/internal/share"
)

// --template and --workers are read by setup as configuration overrides
type shareOptions struct {
	source    sourceOptions
	sel       selectOptions
	recipient string
	dryRun    bool
}

func newShareCommand() *cobra.Command {
	opts := &shareOptions{}

	cmd := &cobra.Command{
		Use:   "share",
		Short: "Create a filled copy of the template for every selected row and share it",
		Long: `Select rows as the filter command does, then copy the slide template once per
row, replace its placeholders with the row's values and grant the recipient
access. No notification email is sent. Failures are reported per row and do not
stop the batch.

Examples:
  slidefill share --sheet "Employee list" --name Jon --recipient reviewer@example.com --template 1AbC...
  slidefill share --csv employees.csv --in Country=UK --recipient reviewer@example.com --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShare(cmd, opts)
		},
	}

	addSourceFlags(cmd, &opts.source)
	addSelectFlags(cmd, &opts.sel)
	cmd.Flags().StringVar(&opts.recipient, "recipient", "", "Email address that receives access to every copy")
	cmd.Flags().String("template", "", "Slides template presentation ID (default from config)")
	cmd.Flags().Int("workers", 0, "Records processed in parallel (default from config)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the copies that would be made without calling the document service")
	_ = cmd.MarkFlagRequired("recipient")

	return cmd
}

func runShare(cmd *cobra.Command, opts *shareOptions) error {
	cfg, err := GetConfigFromContext(cmd)
	if err != nil {
		return err
	}

	sel, err := opts.sel.build()
	if err != nil {
		return err
	}

	if err := share.ValidateRecipient(opts.recipient); err != nil {
		return err
	}

	sess := newSession(cfg)
	defer sess.Close()

	_, result, svc, err := selectRows(cmd, sess, opts.source, sel, !opts.dryRun)
	if err != nil {
		return err
	}

	f := formatter.NewFormatter(outputFormat(cmd))

	if opts.dryRun {
		planned, err := svc.Preview(result, opts.recipient, cfg.Template.ID)
		if err != nil {
			return err
		}

		out, err := f.FormatPlan(planned)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), out)

		return nil
	}

	stop := startSpinner(cmd, fmt.Sprintf(" Sharing %d copies with %s", result.Len(), opts.recipient))
	report, err := svc.ShareAll(cmd.Context(), result, opts.recipient, cfg.Template.ID)
	stop()

	if err != nil {
		return err
	}

	out, err := f.FormatReport(report)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), out)

	if ctxErr := cmd.Context().Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, errors.ErrTypeCancelled, "share run interrupted").
			WithSuggestion("Copies listed as shared were kept; rerun with a narrower selection for the rest")
	}

	if failed := len(report.Failed()); failed > 0 {
		return errors.Newf(errors.ErrTypeArtifact, "%d of %d records were not shared", failed, len(report.Outcomes)).
			WithSuggestion("Check the reasons above; shared copies were kept")
	}

	return nil
}

// startSpinner shows progress on an interactive stderr and returns its stop function
func startSpinner(cmd *cobra.Command, suffix string) func() {
	f, ok := cmd.ErrOrStderr().(*os.File)
	if !ok {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriterFile(f), spinner.WithSuffix(suffix))
	s.Start()

	return s.Stop
}
