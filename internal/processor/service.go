package processor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/logging"
	"github.com/kyleking/slidefill/internal/pool"
	"github.com/kyleking/slidefill/internal/query"
	"github.com/kyleking/slidefill/internal/share"
	"github.com/kyleking/slidefill/internal/templater"
)

// Service defines the filter and share operations exposed to the CLI
type Service interface {
	TranslateAndFilter(ctx context.Context, ds *dataset.Dataset, q string) (*query.FilterResult, error)
	FilterByParameters(ctx context.Context, ds *dataset.Dataset, params query.Parameters) (*query.FilterResult, error)
	Lookup(ctx context.Context, ds *dataset.Dataset, column, value string) (*query.FilterResult, error)
	Preview(result *query.FilterResult, recipient, templateID string) ([]Planned, error)
	ShareAll(ctx context.Context, result *query.FilterResult, recipient, templateID string) (*share.Report, error)
}

// Dependencies are the collaborators a Service runs on. Engine and Pool are optional.
type Dependencies struct {
	Translator *query.Translator
	Engine     query.Engine
	Templater  *templater.Templater
	Broker     *share.Broker
	Pool       *pool.WorkerPool
}

// Planned describes the artifact ShareAll would create for one record
type Planned struct {
	Index        int                     `json:"index"`
	Title        string                  `json:"title"`
	Replacements []templater.Replacement `json:"replacements"`
}

type serviceImpl struct {
	translator *query.Translator
	engine     query.Engine
	templater  *templater.Templater
	broker     *share.Broker
	pool       *pool.WorkerPool
}

// NewService creates a new processing service
func NewService(deps Dependencies) Service {
	s := &serviceImpl{
		translator: deps.Translator,
		engine:     deps.Engine,
		templater:  deps.Templater,
		broker:     deps.Broker,
		pool:       deps.Pool,
	}

	if s.engine == nil {
		s.engine = query.NewMemoryEngine()
	}

	if s.pool == nil {
		s.pool = pool.NewWorkerPool(1, 1, 0)
	}

	return s
}

// TranslateAndFilter turns a natural-language request into a validated predicate and applies it
func (s *serviceImpl) TranslateAndFilter(ctx context.Context, ds *dataset.Dataset, q string) (*query.FilterResult, error) {
	if s.translator == nil {
		return nil, errors.NewConfigError("no language model configured", "llm.provider").
			WithSuggestion("Set SLIDEFILL_LLM_PROVIDER and the matching API key")
	}

	expr, err := s.translator.Translate(ctx, q, ds.Schema())
	if err != nil {
		return nil, err
	}

	p, err := query.NewValidator(ds.Schema()).Validate(expr)
	if err != nil {
		return nil, err
	}

	s.translator.Remember(ctx, q, ds.Schema(), expr)

	result, err := s.engine.Filter(ctx, ds, p)
	if err != nil {
		return nil, wrapEngineError(err)
	}

	logging.WithFields(map[string]interface{}{
		"query":     q,
		"predicate": p.String(),
		"matches":   result.Len(),
	}).Info("Filtered dataset")

	return result, nil
}

// FilterByParameters applies structured constraints
func (s *serviceImpl) FilterByParameters(ctx context.Context, ds *dataset.Dataset, params query.Parameters) (*query.FilterResult, error) {
	p, err := params.Compile(ds.Schema())
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Filter(ctx, ds, p)
	if err != nil {
		return nil, wrapEngineError(err)
	}

	logging.Debugf("Parameters %s matched %d of %d records", p, result.Len(), ds.Len())

	return result, nil
}

// Lookup returns the records whose column equals value exactly
func (s *serviceImpl) Lookup(ctx context.Context, ds *dataset.Dataset, column, value string) (*query.FilterResult, error) {
	return s.FilterByParameters(ctx, ds, query.NewParameters(query.Equals(column, value)))
}

// Preview runs the pre-flight checks and lists the artifacts a share would produce
func (s *serviceImpl) Preview(result *query.FilterResult, recipient, templateID string) ([]Planned, error) {
	if err := s.preflight(result, recipient, templateID); err != nil {
		return nil, err
	}

	planned := make([]Planned, 0, result.Len())

	for i, rec := range result.Records {
		idx := sourceIndex(result, i)

		replacements, err := s.templater.Bindings().Replacements(rec)
		if err != nil {
			return nil, err
		}

		planned = append(planned, Planned{Index: idx, Title: s.templater.Title(rec, idx), Replacements: replacements})
	}

	return planned, nil
}

// ShareAll produces and shares one artifact per record. Pre-flight failures
// return an error before any document call. After that every record gets an
// outcome and the report is returned even when some of them failed.
func (s *serviceImpl) ShareAll(ctx context.Context, result *query.FilterResult, recipient, templateID string) (*share.Report, error) {
	if err := s.preflight(result, recipient, templateID); err != nil {
		return nil, err
	}

	if s.broker == nil {
		return nil, errors.New(errors.ErrTypeConfig, "share broker is not configured")
	}

	runID := uuid.NewString()
	start := time.Now()
	logger := logging.WithFields(map[string]interface{}{
		"run":       runID,
		"recipient": recipient,
		"role":      s.broker.Role(),
		"template":  templateID,
		"records":   result.Len(),
		"workers":   s.pool.Workers(),
	})

	logger.Info("Starting share run")

	tasks := make([]pool.Task, result.Len())
	for i, rec := range result.Records {
		idx := sourceIndex(result, i)

		tasks[i] = pool.Task{
			ID: s.templater.Title(rec, idx),
			Func: func(ctx context.Context) (interface{}, error) {
				outcome := s.templater.Produce(ctx, templateID, rec, idx)
				return s.broker.Share(ctx, outcome, recipient), nil
			},
		}
	}

	results := s.pool.Execute(ctx, tasks)

	outcomes := make([]share.Outcome, len(results))
	for i, r := range results {
		outcome, ok := r.Data.(share.Outcome)

		switch {
		case !r.Started:
			outcome = share.Outcome{Index: sourceIndex(result, i), Title: tasks[i].ID}.Fail("cancelled: " + reason(ctx, r.Error))
		case !ok:
			outcome = share.Outcome{Index: sourceIndex(result, i), Title: tasks[i].ID}.Fail("no outcome: " + reason(ctx, r.Error))
		}

		if outcome.Status == share.StatusFailed {
			logger.WithField("title", outcome.Title).Warnf("Record not shared: %s", outcome.Reason)
		}

		outcomes[i] = outcome
	}

	report := share.NewReport(runID, recipient, outcomes, time.Since(start))
	report.Role = s.broker.Role()

	logger.WithFields(map[string]interface{}{
		"shared":   report.Shared,
		"failed":   len(report.Failed()),
		"duration": report.Duration.String(),
	}).Info("Share run finished")

	return report, nil
}

// preflight rejects a run that cannot succeed for any record
func (s *serviceImpl) preflight(result *query.FilterResult, recipient, templateID string) error {
	if err := share.ValidateRecipient(recipient); err != nil {
		return err
	}

	if strings.TrimSpace(templateID) == "" {
		return errors.NewConfigError("template ID is required", "template.id").
			WithSuggestion("Pass --template or set SLIDEFILL_TEMPLATE_ID")
	}

	if s.templater == nil {
		return errors.New(errors.ErrTypeConfig, "document service is not configured")
	}

	if result == nil {
		return errors.New(errors.ErrTypeInternal, "no filter result to share")
	}

	return s.templater.Bindings().Check(result.Schema)
}

func sourceIndex(result *query.FilterResult, i int) int {
	if i < len(result.Indices) {
		return result.Indices[i]
	}

	return i
}

func reason(ctx context.Context, err error) string {
	if err != nil {
		return err.Error()
	}

	if ctx.Err() != nil {
		return ctx.Err().Error()
	}

	return "not started"
}

func wrapEngineError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrTypeCancelled, "filter cancelled")
	}

	var structErr *errors.Error
	if errors.As(err, &structErr) {
		return err
	}

	return errors.Wrap(err, errors.ErrTypeDatabase, "filter failed")
}
