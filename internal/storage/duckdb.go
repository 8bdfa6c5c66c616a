package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
)

// RowColumn holds the source position of each record in a loaded table
const RowColumn = "_row"

// DuckDBStore implements Repository using DuckDB
type DuckDBStore struct {
	db           *sql.DB
	path         string
	queryTimeout time.Duration
}

// NewDuckDBStore opens a DuckDB database. An empty path opens an in-memory database.
func NewDuckDBStore(dbPath string) (*DuckDBStore, error) {
	return NewDuckDBStoreWithTimeout(dbPath, 0)
}

// NewDuckDBStoreWithTimeout opens a store whose queries are bounded by queryTimeout
func NewDuckDBStoreWithTimeout(dbPath string, queryTimeout time.Duration) (*DuckDBStore, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeFileSystem, "failed to create database directory")
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database")
	}

	// An in-memory database lives inside a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to ping database")
	}

	return &DuckDBStore{
		db:           db,
		path:         dbPath,
		queryTimeout: queryTimeout,
	}, nil
}

func (s *DuckDBStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}

	return context.WithCancel(ctx)
}

// LoadDataset replaces table with the dataset's records plus a _row ordinal
// column. Columns are stored under their positional names (see ColumnName).
func (s *DuckDBStore) LoadDataset(ctx context.Context, table string, ds *dataset.Dataset) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	schema := ds.Schema()

	defs := make([]string, 0, schema.Len()+1)
	defs = append(defs, QuoteIdent(RowColumn)+" BIGINT NOT NULL")

	for i, col := range schema.Columns() {
		defs = append(defs, QuoteIdent(ColumnName(i))+" "+sqlType(col.Kind))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	createSQL := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to create table %s", table)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", schema.Len()+1), ", ")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", QuoteIdent(table), placeholders))
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to prepare insert")
	}
	defer stmt.Close()

	for i, rec := range ds.Records() {
		args := make([]interface{}, 0, schema.Len()+1)
		args = append(args, int64(i))

		for _, v := range rec.Values() {
			args = append(args, SQLValue(v))
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to insert row %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to commit dataset")
	}

	return nil
}

// SelectRows returns the _row ordinals matching where, in ascending order
func (s *DuckDBStore) SelectRows(ctx context.Context, table, where string, args []interface{}) ([]int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		QuoteIdent(RowColumn), QuoteIdent(table), where, QuoteIdent(RowColumn))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to execute filter query")
	}
	defer rows.Close()

	var out []int

	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan row")
		}

		out = append(out, int(idx))
	}

	return out, rows.Err()
}

// ReadCSV reads a CSV file with a header row, keeping every cell as text.
// Empty cells come back as empty strings.
func (s *DuckDBStore) ReadCSV(ctx context.Context, path string) ([]string, [][]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT * FROM read_csv_auto(%s, header=true, all_varchar=true)", QuoteLiteral(path))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to read %s", path)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to get columns")
	}

	var out [][]string

	for rows.Next() {
		cells := make([]sql.NullString, len(header))
		ptrs := make([]interface{}, len(header))

		for i := range cells {
			ptrs[i] = &cells[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan row")
		}

		row := make([]string, len(header))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.String
			}
		}

		out = append(out, row)
	}

	return header, out, rows.Err()
}

// Drop removes a table if it exists
func (s *DuckDBStore) Drop(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(table)); err != nil {
		return errors.Wrapf(err, errors.ErrTypeDatabase, "failed to drop %s", table)
	}

	return nil
}

// Close closes the database connection
func (s *DuckDBStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// ColumnName is the table column holding the dataset column at position i.
// DuckDB matches identifiers case-insensitively, so header names such as
// "Name" and "name" cannot be used as they are.
func ColumnName(i int) string {
	return fmt.Sprintf("c%d", i)
}

// QuoteIdent quotes a SQL identifier, doubling embedded quotes
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a SQL string literal, doubling embedded quotes
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SQLValue converts a dataset value into a driver argument
func SQLValue(v dataset.Value) interface{} {
	if v.Kind() == dataset.KindInteger {
		return v.Int()
	}

	return v.Text()
}

func sqlType(k dataset.Kind) string {
	if k == dataset.KindInteger {
		return "BIGINT"
	}

	return "VARCHAR"
}
