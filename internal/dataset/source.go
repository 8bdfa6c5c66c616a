package dataset

import "context"

// Source loads a dataset by identifier (a sheet name, a file path).
// Unknown identifiers yield an errors.ErrTypeNotFound error.
type Source interface {
	Load(ctx context.Context, id string) (*Dataset, *CleanReport, error)
}
