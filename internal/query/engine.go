package query

import (
	"context"
	"sync"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/storage"
)

// FilterResult is the ordered subset of a dataset matching a predicate
type FilterResult struct {
	Schema  *dataset.Schema
	Records []dataset.Record
	// Indices are the source positions of Records in the dataset
	Indices []int
}

// Len returns the number of matching records
func (r *FilterResult) Len() int {
	return len(r.Records)
}

// Engine applies validated predicates to datasets
type Engine interface {
	Filter(ctx context.Context, ds *dataset.Dataset, p Predicate) (*FilterResult, error)
}

// MemoryEngine evaluates predicates record by record
type MemoryEngine struct{}

// NewMemoryEngine creates an in-process engine
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{}
}

// Filter returns matching records in dataset order
func (e *MemoryEngine) Filter(ctx context.Context, ds *dataset.Dataset, p Predicate) (*FilterResult, error) {
	result := &FilterResult{Schema: ds.Schema()}

	for i, rec := range ds.Records() {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if p.Match(rec) {
			result.Records = append(result.Records, rec)
			result.Indices = append(result.Indices, i)
		}
	}

	return result, nil
}

// SQLEngine compiles predicates to parameterised SQL and runs them on DuckDB
type SQLEngine struct {
	repo  storage.Repository
	table string

	mu     sync.Mutex
	loaded *dataset.Dataset
}

// NewSQLEngine creates an engine that loads datasets into repo on demand
func NewSQLEngine(repo storage.Repository) *SQLEngine {
	return &SQLEngine{repo: repo, table: storage.DefaultTable}
}

// Filter loads ds if it is not the dataset currently in the table, then selects matching rows
func (e *SQLEngine) Filter(ctx context.Context, ds *dataset.Dataset, p Predicate) (*FilterResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded != ds {
		if err := e.repo.LoadDataset(ctx, e.table, ds); err != nil {
			return nil, err
		}

		e.loaded = ds
	}

	where, args, err := CompileSQL(p, ds.Schema())
	if err != nil {
		return nil, err
	}

	rows, err := e.repo.SelectRows(ctx, e.table, where, args)
	if err != nil {
		return nil, err
	}

	result := &FilterResult{Schema: ds.Schema()}

	for _, i := range rows {
		if i < 0 || i >= ds.Len() {
			return nil, errors.Newf(errors.ErrTypeInternal, "filter returned unknown row %d", i)
		}

		result.Records = append(result.Records, ds.Record(i))
		result.Indices = append(result.Indices, i)
	}

	return result, nil
}

var (
	_ Engine = (*MemoryEngine)(nil)
	_ Engine = (*SQLEngine)(nil)
)
