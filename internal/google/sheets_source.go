package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/logging"
	"github.com/kyleking/slidefill/internal/pool"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// SheetsSource loads a dataset from a spreadsheet found by its file name
type SheetsSource struct {
	client     *Client
	sheetRange string
}

// NewSheetsSource reads sheetRange (an A1 range or a sheet title) from
// spreadsheets opened through c. An empty range reads the first worksheet.
func NewSheetsSource(c *Client, sheetRange string) *SheetsSource {
	return &SheetsSource{client: c, sheetRange: strings.TrimSpace(sheetRange)}
}

// Load finds the spreadsheet called name, reads its first row as the header
// and cleans the remaining rows
func (s *SheetsSource) Load(ctx context.Context, name string) (*dataset.Dataset, *dataset.CleanReport, error) {
	id, err := s.resolve(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	readRange := s.sheetRange
	if readRange == "" {
		if readRange, err = s.firstSheet(ctx, id, name); err != nil {
			return nil, nil, err
		}
	}

	var values [][]interface{}

	err = pool.Retry(ctx, s.client.backoff, func(ctx context.Context) error {
		resp, err := s.client.sheets.Spreadsheets.Values.Get(id, readRange).
			ValueRenderOption("UNFORMATTED_VALUE").
			DateTimeRenderOption("FORMATTED_STRING").
			Context(ctx).
			Do()
		if err != nil {
			return classify(err, name)
		}

		values = resp.Values

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(values) == 0 {
		return nil, nil, errors.Newf(errors.ErrTypeNotFound, "spreadsheet %q has no header row in %s", name, readRange).
			WithSubject(name)
	}

	header := cells(values[0])

	rows := make([][]string, 0, len(values)-1)
	for _, row := range values[1:] {
		rows = append(rows, cells(row))
	}

	ds, report, err := dataset.Clean(header, rows)
	if err != nil {
		return nil, nil, err
	}

	logging.WithFields(map[string]interface{}{
		"spreadsheet": name,
		"rows":        report.TotalRows,
		"dropped":     len(report.Dropped),
	}).Info("Loaded spreadsheet")

	return ds, report, nil
}

// resolve returns the ID of the most recently modified spreadsheet named name
func (s *SheetsSource) resolve(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.NewConfigError("spreadsheet name is required", "dataset.sheet_name")
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), spreadsheetMimeType)

	var id string

	err := pool.Retry(ctx, s.client.backoff, func(ctx context.Context) error {
		list, err := s.client.drive.Files.List().
			Q(q).
			Fields("files(id, name)").
			OrderBy("modifiedTime desc").
			PageSize(1).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return classify(err, name)
		}

		if len(list.Files) > 0 {
			id = list.Files[0].Id
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if id == "" {
		return "", errors.Newf(errors.ErrTypeNotFound, "spreadsheet %q not found", name).
			WithSubject(name).
			WithSuggestion("Check the spelling of the spreadsheet name").
			WithSuggestion("Confirm the file is a Google Sheet in Drive").
			WithSuggestion("Share the file with the service account email")
	}

	return id, nil
}

// firstSheet returns the quoted title of the worksheet at index 0
func (s *SheetsSource) firstSheet(ctx context.Context, id, name string) (string, error) {
	var (
		title string
		index int64 = -1
	)

	err := pool.Retry(ctx, s.client.backoff, func(ctx context.Context) error {
		resp, err := s.client.sheets.Spreadsheets.Get(id).
			Fields("sheets.properties(title,index)").
			Context(ctx).
			Do()
		if err != nil {
			return classify(err, name)
		}

		for _, sh := range resp.Sheets {
			if sh.Properties == nil {
				continue
			}

			if index < 0 || sh.Properties.Index < index {
				title, index = sh.Properties.Title, sh.Properties.Index
			}
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if index < 0 {
		return "", errors.Newf(errors.ErrTypeNotFound, "spreadsheet %q has no worksheets", name).WithSubject(name)
	}

	return "'" + strings.ReplaceAll(title, "'", "''") + "'", nil
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func cells(row []interface{}) []string {
	out := make([]string, len(row))
	for i, c := range row {
		switch v := c.(type) {
		case nil:
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			out[i] = fmt.Sprint(v)
		}
	}

	return out
}

var _ dataset.Source = (*SheetsSource)(nil)
