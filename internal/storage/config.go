package storage

import (
	"time"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/logging"
)

// NewDuckDBStoreFromConfig opens the store described by the database section.
// File-backed databases may use several connections; in-memory ones keep one
// so every query sees the loaded tables.
func NewDuckDBStoreFromConfig(cfg *config.DatabaseConfig) (*DuckDBStore, error) {
	timeout, err := time.ParseDuration(cfg.QueryTimeout)
	if err != nil || timeout < 0 {
		return nil, errors.NewConfigError("invalid database query timeout", "database.query_timeout").
			WithSubject(cfg.QueryTimeout)
	}

	store, err := NewDuckDBStoreWithTimeout(cfg.Path, timeout)
	if err != nil {
		return nil, err
	}

	if cfg.Path != "" && cfg.MaxConnections > 1 {
		store.db.SetMaxOpenConns(cfg.MaxConnections)
		store.db.SetMaxIdleConns(cfg.MaxConnections)
	}

	logging.WithFields(map[string]interface{}{
		"path":    orMemory(cfg.Path),
		"timeout": timeout.String(),
	}).Debug("Opened DuckDB store")

	return store, nil
}

func orMemory(path string) string {
	if path == "" {
		return ":memory:"
	}

	return path
}
