package storage

import (
	"context"
	"os"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
)

// CSVSource loads uploaded CSV files through DuckDB's CSV reader
type CSVSource struct {
	repo Repository
}

// NewCSVSource creates a source that reads files with repo
func NewCSVSource(repo Repository) *CSVSource {
	return &CSVSource{repo: repo}
}

// Load reads the CSV at path and cleans it into a dataset
func (c *CSVSource) Load(ctx context.Context, path string) (*dataset.Dataset, *dataset.CleanReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.Newf(errors.ErrTypeNotFound, "CSV file not found: %s", path).
				WithSubject(path).
				WithSuggestion("Check the path passed to --csv")
		}

		return nil, nil, errors.Wrapf(err, errors.ErrTypeFileSystem, "cannot read %s", path)
	}

	if info.IsDir() {
		return nil, nil, errors.Newf(errors.ErrTypeFileSystem, "%s is a directory", path)
	}

	header, rows, err := c.repo.ReadCSV(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	return dataset.Clean(header, rows)
}

var _ dataset.Source = (*CSVSource)(nil)
