package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/kyleking/slidefill/internal/cache"
	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/llm"
	"github.com/kyleking/slidefill/internal/logging"
)

const promptTemplate = `Convert the request below into a single filter expression over a table.

The table has these columns:
%s

Rules:
- Use only the column names listed above, spelled exactly as shown.
- Compare with ==, !=, <, <=, >, >= and combine conditions with and / or.
- Put text values in double quotes. Numbers are whole numbers without quotes.
- To match any of several values use: Column in ["a", "b"].
- Answer with the expression only, on one line, with no explanation.

Examples:
Request: employees named Jon who live in Spain
Expression: Name == "Jon" and Country == "Spain"

Request: data scientists based in the UK
Expression: Country == "UK" and Occupation == "Data scientist"

Request: %s
Expression:`

// AnswerCache remembers expressions by prompt
type AnswerCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Translator turns a natural-language request into a candidate filter expression
type Translator struct {
	svc      llm.Service
	sampling llm.Sampling

	cache     AnswerCache
	namespace string
}

// TranslatorOption configures a Translator
type TranslatorOption func(*Translator)

// WithCache reuses earlier answers for identical prompts. namespace should
// identify the model so answers from different models are kept apart.
func WithCache(c AnswerCache, namespace string) TranslatorOption {
	return func(t *Translator) {
		t.cache = c
		t.namespace = namespace
	}
}

// NewTranslator creates a translator backed by svc
func NewTranslator(svc llm.Service, sampling llm.Sampling, opts ...TranslatorOption) *Translator {
	t := &Translator{svc: svc, sampling: sampling}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Translate asks the model for an expression. The answer is tidied but never
// corrected: anything that is not a single tokenizable line is rejected.
// Answers are not cached here; call Remember once the expression validates.
func (t *Translator) Translate(ctx context.Context, q string, schema *dataset.Schema) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", errors.New(errors.ErrTypeTranslation, "query is empty")
	}

	prompt := BuildPrompt(q, schema)
	key := cache.Key(t.namespace, prompt)

	if expr, ok := t.cached(ctx, key); ok {
		logging.WithFields(map[string]interface{}{
			"query":      q,
			"expression": expr,
		}).Debug("Reused cached translation")

		return expr, nil
	}

	raw, err := t.svc.Complete(ctx, prompt, t.sampling)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "translation cancelled")
		}

		return "", errors.Wrap(err, errors.ErrTypeTranslation, "language model call failed").
			WithSuggestion("Use the parameter filters instead of a free-text query")
	}

	expr, err := normalizeAnswer(raw)
	if err != nil {
		return "", err
	}

	logging.WithFields(map[string]interface{}{
		"query":      q,
		"expression": expr,
	}).Debug("Translated query")

	return expr, nil
}

// Remember stores a validated expression as the answer for q
func (t *Translator) Remember(ctx context.Context, q string, schema *dataset.Schema, expr string) {
	if t.cache == nil {
		return
	}

	key := cache.Key(t.namespace, BuildPrompt(strings.TrimSpace(q), schema))

	if stored, ok := t.cached(ctx, key); ok && stored == expr {
		return
	}

	if err := t.cache.Set(ctx, key, expr); err != nil {
		logging.Debugf("Failed to cache translation: %v", err)
	}
}

// cached returns a stored answer that still passes normalization. Entries
// that no longer do are removed.
func (t *Translator) cached(ctx context.Context, key string) (string, bool) {
	if t.cache == nil {
		return "", false
	}

	raw, err := t.cache.Get(ctx, key)
	if err != nil {
		return "", false
	}

	expr, err := normalizeAnswer(raw)
	if err != nil {
		if err := t.cache.Delete(ctx, key); err != nil {
			logging.Debugf("Failed to remove stale translation: %v", err)
		}

		return "", false
	}

	return expr, true
}

// BuildPrompt renders the translation prompt for q over schema
func BuildPrompt(q string, schema *dataset.Schema) string {
	var cols strings.Builder

	for _, c := range schema.Columns() {
		fmt.Fprintf(&cols, "- %s (%s)\n", formatColumn(c.Name), c.Kind)
	}

	return fmt.Sprintf(promptTemplate, strings.TrimRight(cols.String(), "\n"), q)
}

var answerLabels = []string{"expression:", "answer:"}

func normalizeAnswer(raw string) (string, error) {
	var lines []string

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		lines = append(lines, line)
	}

	switch len(lines) {
	case 0:
		return "", errors.New(errors.ErrTypeTranslation, "language model returned an empty answer")
	case 1:
	default:
		return "", errors.New(errors.ErrTypeTranslation, "language model returned more than one line").
			WithSubject(lines[0])
	}

	expr := lines[0]

	for _, label := range answerLabels {
		if len(expr) >= len(label) && strings.EqualFold(expr[:len(label)], label) {
			expr = strings.TrimSpace(expr[len(label):])
			break
		}
	}

	if len(expr) >= 2 && expr[0] == '`' && expr[len(expr)-1] == '`' && strings.Count(expr, "`") == 2 {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}

	if expr == "" {
		return "", errors.New(errors.ErrTypeTranslation, "language model returned an empty answer")
	}

	toks, err := tokenize(expr)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeTranslation, "answer is not a well-formed expression").WithSubject(expr)
	}

	for _, tok := range toks {
		if tok.kind == tokSemicolon {
			return "", errors.New(errors.ErrTypeTranslation, "answer contains a statement separator").WithSubject(expr)
		}
	}

	return expr, nil
}
