package dataset

import (
	"strconv"
	"strings"

	"github.com/kyleking/slidefill/internal/errors"
)

// DroppedRow is a source row excluded during cleaning
type DroppedRow struct {
	Line   int // 1-based data row number, header excluded
	Cells  []string
	Reason string
}

// CleanReport describes what Clean did to the raw rows
type CleanReport struct {
	TotalRows int
	Dropped   []DroppedRow
	Kinds     map[string]Kind
}

// Clean turns raw string rows into a typed dataset. Rows with a missing
// value in any column are dropped and reported. A column becomes an integer
// column only when every kept value parses as an integer.
func Clean(header []string, rows [][]string) (*Dataset, *CleanReport, error) {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(h)
	}

	// validates names before any row work
	if _, err := NewSchema(textColumns(names)...); err != nil {
		return nil, nil, err
	}

	report := &CleanReport{TotalRows: len(rows), Kinds: make(map[string]Kind, len(names))}

	kept := make([][]string, 0, len(rows))

	for i, raw := range rows {
		cells, reason := normalizeRow(names, raw)
		if reason != "" {
			report.Dropped = append(report.Dropped, DroppedRow{Line: i + 1, Cells: raw, Reason: reason})
			continue
		}

		kept = append(kept, cells)
	}

	columns := make([]Column, len(names))
	for j, name := range names {
		columns[j] = Column{Name: name, Kind: inferKind(kept, j)}
		report.Kinds[name] = columns[j].Kind
	}

	schema, err := NewSchema(columns...)
	if err != nil {
		return nil, nil, err
	}

	values := make([][]Value, len(kept))
	for i, cells := range kept {
		row := make([]Value, len(cells))

		for j, cell := range cells {
			if columns[j].Kind == KindInteger {
				n, _ := strconv.ParseInt(cell, 10, 64)
				row[j] = Int(n)
			} else {
				row[j] = Text(cell)
			}
		}

		values[i] = row
	}

	ds, err := New(schema, values)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrTypeInternal, "cleaned rows do not match inferred schema")
	}

	return ds, report, nil
}

func textColumns(names []string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: KindText}
	}

	return cols
}

// normalizeRow pads short rows and trims cells. A non-empty reason means drop.
func normalizeRow(names []string, raw []string) ([]string, string) {
	cells := make([]string, len(names))

	for j := range raw {
		cell := strings.TrimSpace(raw[j])
		if j >= len(names) {
			if cell != "" {
				return nil, "more values than header columns"
			}

			continue
		}

		cells[j] = cell
	}

	var missing []string

	for j, c := range cells {
		if c == "" {
			missing = append(missing, names[j])
		}
	}

	if len(missing) > 0 {
		return nil, "missing " + strings.Join(missing, ", ")
	}

	return cells, ""
}

func inferKind(rows [][]string, col int) Kind {
	if len(rows) == 0 {
		return KindText
	}

	for _, r := range rows {
		if _, err := strconv.ParseInt(r[col], 10, 64); err != nil {
			return KindText
		}
	}

	return KindInteger
}
