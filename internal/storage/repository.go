package storage

import (
	"context"

	"github.com/kyleking/slidefill/internal/dataset"
)

// DefaultTable is the table a dataset is loaded into for SQL filtering
const DefaultTable = "records"

// Repository defines the database operations the SQL filter backend needs
type Repository interface {
	LoadDataset(ctx context.Context, table string, ds *dataset.Dataset) error
	SelectRows(ctx context.Context, table, where string, args []interface{}) ([]int, error)
	ReadCSV(ctx context.Context, path string) ([]string, [][]string, error)
	Close() error
}

var _ Repository = (*DuckDBStore)(nil)
