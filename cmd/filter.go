package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/formatter"
	"github.com/kyleking/slidefill/internal/logging"
	"github.com/kyleking/slidefill/internal/processor"
	"github.com/kyleking/slidefill/internal/query"
)

type filterOptions struct {
	source sourceOptions
	sel    selectOptions
}

func newFilterCommand() *cobra.Command {
	opts := &filterOptions{}

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Show the rows a name, parameter set or request selects",
		Long: `Load the dataset and print the rows that match. Rows with missing values are
excluded while loading; --verbose lists them.

Examples:
  slidefill filter --sheet "Employee list" --name Jon
  slidefill filter --csv employees.csv --range Age=30:45 --in Country=Spain,UK
  slidefill filter --sheet "Employee list" --query "data scientists in the UK"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFilter(cmd, opts)
		},
	}

	addSourceFlags(cmd, &opts.source)
	addSelectFlags(cmd, &opts.sel)

	return cmd
}

func runFilter(cmd *cobra.Command, opts *filterOptions) error {
	cfg, err := GetConfigFromContext(cmd)
	if err != nil {
		return err
	}

	sel, err := opts.sel.build()
	if err != nil {
		return err
	}

	sess := newSession(cfg)
	defer sess.Close()

	ds, result, _, err := selectRows(cmd, sess, opts.source, sel, false)
	if err != nil {
		return err
	}

	out, err := formatter.NewFormatter(outputFormat(cmd)).FormatResult(result)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), out)

	logging.Debugf("Selected %d of %d rows", result.Len(), ds.Len())

	return nil
}

// selectRows loads the dataset, reports cleaning and applies the selection.
// The returned service is reused by share.
func selectRows(cmd *cobra.Command, sess *session, src sourceOptions, sel selection, withDocuments bool) (*dataset.Dataset, *query.FilterResult, processor.Service, error) {
	ctx := cmd.Context()

	var (
		ds     *dataset.Dataset
		report *dataset.CleanReport
	)

	err := logging.LoggerMiddleware("load dataset", func() error {
		var err error
		ds, report, err = sess.load(ctx, src)

		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}

	if sess.cfg.Debug.Verbose || len(report.Dropped) > 0 {
		summary, err := formatter.NewFormatter(formatter.FormatTable).FormatCleanReport(ds, report)
		if err != nil {
			return nil, nil, nil, err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), summary)
	}

	svc, err := sess.service(ctx, sel, withDocuments)
	if err != nil {
		return nil, nil, nil, err
	}

	result, err := sel.apply(ctx, svc, ds)
	if err != nil {
		return nil, nil, nil, err
	}

	return ds, result, svc, nil
}
