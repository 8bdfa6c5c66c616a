package formatter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/processor"
	"github.com/kyleking/slidefill/internal/query"
	"github.com/kyleking/slidefill/internal/share"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
)

// ParseFormat accepts "table" or "json"; anything else is an error
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use table or json)", s)
	}
}

// Formatter renders filter results, cleaning reports and share reports
type Formatter struct {
	format OutputFormat
}

// NewFormatter creates a new formatter instance
func NewFormatter(format OutputFormat) *Formatter {
	if format == "" {
		format = FormatTable
	}

	return &Formatter{format: format}
}

// FormatResult renders the matching records
func (f *Formatter) FormatResult(result *query.FilterResult) (string, error) {
	if f.format == FormatJSON {
		rows := make([]map[string]interface{}, 0, result.Len())
		for _, rec := range result.Records {
			rows = append(rows, recordMap(rec))
		}

		return marshal(map[string]interface{}{"count": result.Len(), "indices": result.Indices, "records": rows})
	}

	if result.Len() == 0 {
		return "No matching records.", nil
	}

	data := pterm.TableData{append([]string{"#"}, result.Schema.Names()...)}

	for i, rec := range result.Records {
		idx := i
		if i < len(result.Indices) {
			idx = result.Indices[i]
		}

		data = append(data, append([]string{strconv.Itoa(idx + 1)}, rec.Strings()...))
	}

	table, err := renderTable(data)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s\n%s", table, plural(result.Len(), "matching record")), nil
}

// FormatCleanReport lists the rows excluded while loading and the inferred column kinds
func (f *Formatter) FormatCleanReport(ds *dataset.Dataset, report *dataset.CleanReport) (string, error) {
	kinds := make([][2]string, 0, ds.Schema().Len())
	for _, col := range ds.Schema().Columns() {
		kinds = append(kinds, [2]string{col.Name, col.Kind.String()})
	}

	if f.format == FormatJSON {
		dropped := make([]map[string]interface{}, 0, len(report.Dropped))
		for _, d := range report.Dropped {
			dropped = append(dropped, map[string]interface{}{"line": d.Line, "reason": d.Reason, "cells": d.Cells})
		}

		columns := make(map[string]string, len(kinds))
		for _, k := range kinds {
			columns[k[0]] = k[1]
		}

		return marshal(map[string]interface{}{
			"total_rows": report.TotalRows,
			"kept_rows":  ds.Len(),
			"dropped":    dropped,
			"columns":    columns,
		})
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Loaded %d of %d rows", ds.Len(), report.TotalRows)

	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k[0] + " (" + k[1] + ")"
	}

	fmt.Fprintf(&b, "\nColumns: %s", strings.Join(parts, ", "))

	if len(report.Dropped) == 0 {
		return b.String(), nil
	}

	data := pterm.TableData{{"Row", "Reason", "Values"}}
	for _, d := range report.Dropped {
		data = append(data, []string{strconv.Itoa(d.Line), d.Reason, strings.Join(d.Cells, ", ")})
	}

	table, err := renderTable(data)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(&b, "\nExcluded %s:\n%s", plural(len(report.Dropped), "row"), table)

	return b.String(), nil
}

// FormatPlan renders a dry run
func (f *Formatter) FormatPlan(planned []processor.Planned) (string, error) {
	if f.format == FormatJSON {
		return marshal(planned)
	}

	if len(planned) == 0 {
		return "Nothing to share.", nil
	}

	data := pterm.TableData{{"#", "Title", "Replacements"}}

	for _, p := range planned {
		pairs := make([]string, len(p.Replacements))
		for i, r := range p.Replacements {
			pairs[i] = r.Placeholder + " -> " + r.Value
		}

		data = append(data, []string{strconv.Itoa(p.Index + 1), p.Title, strings.Join(pairs, "; ")})
	}

	table, err := renderTable(data)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s\nDry run: %s would be created", table, plural(len(planned), "artifact")), nil
}

// FormatReport renders the per-record outcomes of a share run
func (f *Formatter) FormatReport(report *share.Report) (string, error) {
	if f.format == FormatJSON {
		return marshal(report)
	}

	run := "run " + report.ID
	if report.Role != "" {
		run += ", role " + report.Role
	}

	summary := fmt.Sprintf("Shared %d of %d with %s in %s (%s)",
		report.Shared, len(report.Outcomes), report.Recipient, humanizeDuration(report.Duration), run)

	if len(report.Outcomes) == 0 {
		return summary, nil
	}

	data := pterm.TableData{{"#", "Title", "Status", "Artifact", "Reason"}}
	for _, o := range report.Outcomes {
		artifact := o.ArtifactID
		if artifact == "" {
			artifact = "-"
		}

		data = append(data, []string{strconv.Itoa(o.Index + 1), o.Title, o.Status.String(), artifact, o.Reason})
	}

	table, err := renderTable(data)
	if err != nil {
		return "", err
	}

	return table + "\n" + summary, nil
}

func renderTable(data pterm.TableData) (string, error) {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}

	return strings.TrimRight(out, "\n"), nil
}

func recordMap(rec dataset.Record) map[string]interface{} {
	names := rec.Schema().Names()
	out := make(map[string]interface{}, len(names))

	for i, v := range rec.Values() {
		if v.Kind() == dataset.KindInteger {
			out[names[i]] = v.Int()
		} else {
			out[names[i]] = v.Text()
		}
	}

	return out
}

func marshal(v interface{}) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON: %w", err)
	}

	return string(out), nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}

	return strconv.Itoa(n) + " " + noun + "s"
}

// humanizeDuration keeps sub-second runs readable
func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
