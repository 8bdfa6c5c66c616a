package cmd

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/processor"
	"github.com/kyleking/slidefill/internal/query"
)

// sourceOptions pick the dataset
type sourceOptions struct {
	sheet string
	csv   string
}

// resolve prefers flags over the configured source
func (o sourceOptions) resolve(cfg config.DatasetConfig) (kind, id string) {
	switch {
	case o.csv != "":
		return "csv", o.csv
	case o.sheet != "":
		return "sheets", o.sheet
	case strings.EqualFold(cfg.Source, "csv"):
		return "csv", cfg.CSVPath
	default:
		return "sheets", cfg.SheetName
	}
}

type selectionMode int

const (
	modeAll selectionMode = iota
	modeName
	modeQuery
	modeParameters
)

// selectOptions are the raw row-selection flags
type selectOptions struct {
	name       string
	nameColumn string
	query      string
	ranges     []string
	sets       []string
}

// selection is a validated choice of exactly one selection mode
type selection struct {
	mode       selectionMode
	name       string
	nameColumn string
	query      string
	params     query.Parameters
}

func addSourceFlags(cmd *cobra.Command, o *sourceOptions) {
	cmd.Flags().StringVar(&o.sheet, "sheet", "", "Google Sheet file name to load")
	cmd.Flags().StringVar(&o.csv, "csv", "", "CSV file to load instead of a sheet")
	cmd.MarkFlagsMutuallyExclusive("sheet", "csv")
}

func addSelectFlags(cmd *cobra.Command, o *selectOptions) {
	cmd.Flags().StringVar(&o.name, "name", "", "Select rows whose name column equals this value exactly")
	cmd.Flags().StringVar(&o.nameColumn, "name-column", "Name", "Column matched by --name")
	cmd.Flags().StringVarP(&o.query, "query", "q", "", "Natural-language description of the rows to select")
	cmd.Flags().StringArrayVar(&o.ranges, "range", nil, "Inclusive integer range, COLUMN=MIN:MAX (repeatable)")
	cmd.Flags().StringArrayVar(&o.sets, "in", nil, "Allowed values, COLUMN=V1,V2 (repeatable)")
}

// build checks that at most one mode is used and parses parameter flags
func (o selectOptions) build() (selection, error) {
	modes := 0
	sel := selection{mode: modeAll, nameColumn: o.nameColumn}

	if o.name != "" {
		modes++
		sel.mode = modeName
		sel.name = o.name
	}

	if strings.TrimSpace(o.query) != "" {
		modes++
		sel.mode = modeQuery
		sel.query = o.query
	}

	if len(o.ranges) > 0 || len(o.sets) > 0 {
		modes++
		sel.mode = modeParameters

		var constraints []query.Constraint

		for _, r := range o.ranges {
			c, err := parseRange(r)
			if err != nil {
				return selection{}, err
			}

			constraints = append(constraints, c)
		}

		for _, s := range o.sets {
			c, err := parseSet(s)
			if err != nil {
				return selection{}, err
			}

			constraints = append(constraints, c)
		}

		sel.params = query.NewParameters(constraints...)
	}

	if modes > 1 {
		return selection{}, errors.New(errors.ErrTypeConfig, "use only one of --name, --query or --range/--in").
			WithSuggestion("--range and --in can be combined with each other")
	}

	if sel.nameColumn == "" {
		sel.nameColumn = "Name"
	}

	return sel, nil
}

// apply runs the selection against ds
func (s selection) apply(ctx context.Context, svc processor.Service, ds *dataset.Dataset) (*query.FilterResult, error) {
	switch s.mode {
	case modeName:
		return svc.Lookup(ctx, ds, s.nameColumn, s.name)
	case modeQuery:
		return svc.TranslateAndFilter(ctx, ds, s.query)
	case modeParameters:
		return svc.FilterByParameters(ctx, ds, s.params)
	default:
		return svc.FilterByParameters(ctx, ds, query.NewParameters())
	}
}

// parseRange reads COLUMN=MIN:MAX
func parseRange(s string) (query.Constraint, error) {
	column, bounds, ok := strings.Cut(s, "=")
	column = strings.TrimSpace(column)

	if !ok || column == "" {
		return query.Constraint{}, flagError("--range", s, "COLUMN=MIN:MAX")
	}

	lo, hi, ok := strings.Cut(bounds, ":")
	if !ok {
		return query.Constraint{}, flagError("--range", s, "COLUMN=MIN:MAX")
	}

	minimum, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return query.Constraint{}, flagError("--range", s, "integer bounds")
	}

	maximum, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return query.Constraint{}, flagError("--range", s, "integer bounds")
	}

	return query.InRange(column, minimum, maximum), nil
}

// parseSet reads COLUMN=V1,V2; an empty list selects nothing
func parseSet(s string) (query.Constraint, error) {
	column, list, ok := strings.Cut(s, "=")
	column = strings.TrimSpace(column)

	if !ok || column == "" {
		return query.Constraint{}, flagError("--in", s, "COLUMN=V1,V2")
	}

	var values []string

	for _, v := range strings.Split(list, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}

	return query.OneOf(column, values...), nil
}

func flagError(flag, value, want string) error {
	return errors.Newf(errors.ErrTypeConfig, "invalid %s value %q (want %s)", flag, value, want).WithSubject(value)
}
