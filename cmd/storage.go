package cmd

import (
	"context"
	"strings"

	"github.com/kyleking/slidefill/internal/cache"
	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/google"
	"github.com/kyleking/slidefill/internal/llm"
	"github.com/kyleking/slidefill/internal/logging"
	"github.com/kyleking/slidefill/internal/pool"
	"github.com/kyleking/slidefill/internal/processor"
	"github.com/kyleking/slidefill/internal/query"
	"github.com/kyleking/slidefill/internal/share"
	"github.com/kyleking/slidefill/internal/storage"
	"github.com/kyleking/slidefill/internal/templater"
)

// documentBackend copies, fills and shares presentations
type documentBackend interface {
	templater.DocumentService
	share.Granter
}

// Factories for external services; tests replace them with fakes.
var (
	newLanguageModel = func(cfg *config.Config) (llm.Service, error) {
		return llm.NewManagerFromConfig(cfg.LLM)
	}

	newGoogleClient = func(ctx context.Context, cfg *config.Config) (*google.Client, error) {
		return google.NewClient(ctx, cfg.Google, pool.BackoffFromConfig(cfg.Share))
	}

	newDocumentBackend = func(ctx context.Context, cfg *config.Config) (documentBackend, error) {
		return newGoogleClient(ctx, cfg)
	}

	newSheetSource = func(ctx context.Context, cfg *config.Config) (dataset.Source, error) {
		client, err := newGoogleClient(ctx, cfg)
		if err != nil {
			return nil, err
		}

		return google.NewSheetsSource(client, cfg.Dataset.SheetRange), nil
	}
)

// session holds what one command invocation opened
type session struct {
	cfg   *config.Config
	store *storage.DuckDBStore
}

func newSession(cfg *config.Config) *session {
	return &session{cfg: cfg}
}

// duckdb opens the DuckDB store on first use
func (s *session) duckdb() (*storage.DuckDBStore, error) {
	if s.store != nil {
		return s.store, nil
	}

	store, err := storage.NewDuckDBStoreFromConfig(&s.cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open DuckDB")
	}

	s.store = store

	return store, nil
}

// Close drops the loaded records so a file-backed database keeps no rows
// between runs, then closes the store
func (s *session) Close() error {
	if s.store == nil {
		return nil
	}

	if err := s.store.Drop(context.Background(), storage.DefaultTable); err != nil {
		logging.Warnf("Failed to drop %s: %v", storage.DefaultTable, err)
	}

	return s.store.Close()
}

// load reads the dataset named by the source flags, falling back to config
func (s *session) load(ctx context.Context, src sourceOptions) (*dataset.Dataset, *dataset.CleanReport, error) {
	kind, id := src.resolve(s.cfg.Dataset)
	if strings.TrimSpace(id) == "" {
		return nil, nil, errors.NewConfigError("no dataset selected", "dataset").
			WithSuggestion("Pass --sheet NAME or --csv PATH")
	}

	var (
		source dataset.Source
		err    error
	)

	switch kind {
	case "csv":
		var store *storage.DuckDBStore

		store, err = s.duckdb()
		if err == nil {
			source = storage.NewCSVSource(store)
		}
	default:
		source, err = newSheetSource(ctx, s.cfg)
	}

	if err != nil {
		return nil, nil, err
	}

	ds, report, err := source.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if required := s.cfg.Dataset.RequiredColumns; len(required) > 0 {
		if err := ds.Schema().Require(required...); err != nil {
			return nil, nil, err
		}
	}

	return ds, report, nil
}

// service wires a processor for the selection mode; documents are only
// opened when withDocuments is set
func (s *session) service(ctx context.Context, sel selection, withDocuments bool) (processor.Service, error) {
	deps := processor.Dependencies{
		Engine: query.NewMemoryEngine(),
		Pool:   pool.NewWorkerPoolFromConfig(s.cfg.Share),
	}

	if strings.EqualFold(s.cfg.Filter.Backend, "duckdb") {
		store, err := s.duckdb()
		if err != nil {
			return nil, err
		}

		deps.Engine = query.NewSQLEngine(store)
	}

	if sel.mode == modeQuery {
		model, err := newLanguageModel(s.cfg)
		if err != nil {
			return nil, err
		}

		var opts []query.TranslatorOption

		store, err := cache.NewFileCacheFromConfig(s.cfg.Cache)
		if err != nil {
			logging.Warnf("Translation cache unavailable: %v", err)
		} else if store != nil {
			opts = append(opts, query.WithCache(store, s.cfg.LLM.Provider+"/"+s.cfg.LLM.Model))
		}

		deps.Translator = query.NewTranslator(model, llm.SamplingFrom(s.cfg.LLM), opts...)
	}

	bindings, err := templater.ParseBindings(s.cfg.Template.Placeholders)
	if err != nil {
		return nil, err
	}

	var docs templater.DocumentService

	if withDocuments {
		backend, err := newDocumentBackend(ctx, s.cfg)
		if err != nil {
			return nil, err
		}

		docs = backend
		deps.Broker = share.NewBroker(backend, s.cfg.Share.Role)
	}

	deps.Templater = templater.New(docs, bindings, templater.WithTitleColumns(s.cfg.Template.TitleColumns...))

	return processor.NewService(deps), nil
}
