package storage

import (
	"context"
	"testing"

	"github.com/kyleking/slidefill/internal/dataset"
)

// NewTestStore creates an in-memory store closed when the test ends
func NewTestStore(t *testing.T) *DuckDBStore {
	t.Helper()

	store, err := NewDuckDBStore("")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})

	return store
}

// NewTestStoreWithData creates an in-memory store with ds loaded into DefaultTable
func NewTestStoreWithData(t *testing.T, ds *dataset.Dataset) *DuckDBStore {
	t.Helper()

	store := NewTestStore(t)
	if err := store.LoadDataset(context.Background(), DefaultTable, ds); err != nil {
		t.Fatalf("failed to load test dataset: %v", err)
	}

	return store
}
