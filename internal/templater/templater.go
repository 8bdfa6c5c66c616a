// Package templater produces one populated copy of a presentation template per record.
package templater

import (
	"context"
	"fmt"
	"strings"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/share"
)

// Replacement swaps every occurrence of Placeholder for Value, ignoring case
type Replacement struct {
	Placeholder string
	Value       string
}

// DocumentService copies templates and substitutes text in the copies
type DocumentService interface {
	Copy(ctx context.Context, templateID, title string) (string, error)
	Substitute(ctx context.Context, artifactID string, replacements []Replacement) error
}

// Binding maps a placeholder in the template to a column
type Binding struct {
	Placeholder string
	Column      string
}

// Bindings is the ordered placeholder list applied to every copy
type Bindings []Binding

// DefaultBindings are the employee card placeholders
func DefaultBindings() Bindings {
	return Bindings{
		{Placeholder: "**Employee ID**", Column: "ID"},
		{Placeholder: "**Employee Name**", Column: "Name"},
		{Placeholder: "**Occupation**", Column: "Occupation"},
		{Placeholder: "**Country**", Column: "Country"},
		{Placeholder: "**Age**", Column: "Age"},
	}
}

// ParseBindings reads "placeholder=Column" pairs. The last '=' separates the
// two so placeholders may contain '='.
func ParseBindings(specs []string) (Bindings, error) {
	out := make(Bindings, 0, len(specs))
	seen := make(map[string]bool)

	for _, spec := range specs {
		i := strings.LastIndex(spec, "=")
		if i <= 0 || i == len(spec)-1 {
			return nil, errors.NewConfigError(fmt.Sprintf("invalid placeholder binding %q, want placeholder=Column", spec), "template.placeholders")
		}

		b := Binding{Placeholder: strings.TrimSpace(spec[:i]), Column: strings.TrimSpace(spec[i+1:])}
		if b.Placeholder == "" || b.Column == "" {
			return nil, errors.NewConfigError(fmt.Sprintf("invalid placeholder binding %q", spec), "template.placeholders")
		}

		if seen[b.Placeholder] {
			return nil, errors.NewConfigError(fmt.Sprintf("placeholder %q is bound twice", b.Placeholder), "template.placeholders")
		}

		seen[b.Placeholder] = true
		out = append(out, b)
	}

	return out, nil
}

// Columns lists bound columns in binding order
func (b Bindings) Columns() []string {
	cols := make([]string, len(b))
	for i, binding := range b {
		cols[i] = binding.Column
	}

	return cols
}

// Check reports bound columns the schema lacks
func (b Bindings) Check(schema *dataset.Schema) error {
	return schema.Require(b.Columns()...)
}

// Replacements renders the bindings for one record
func (b Bindings) Replacements(rec dataset.Record) ([]Replacement, error) {
	out := make([]Replacement, 0, len(b))

	for _, binding := range b {
		v, ok := rec.Get(binding.Column)
		if !ok {
			return nil, errors.NewSchemaMismatchError(binding.Column, "record has no column %s", binding.Column)
		}

		out = append(out, Replacement{Placeholder: binding.Placeholder, Value: v.String()})
	}

	return out, nil
}

// Templater drives copy-then-populate for single records
type Templater struct {
	docs         DocumentService
	bindings     Bindings
	titleColumns []string
	titleSep     string
}

// Option configures a Templater
type Option func(*Templater)

// WithTitleColumns sets the columns joined into each copy's title
func WithTitleColumns(columns ...string) Option {
	return func(t *Templater) {
		t.titleColumns = columns
	}
}

// WithTitleSeparator sets the separator between title parts
func WithTitleSeparator(sep string) Option {
	return func(t *Templater) {
		t.titleSep = sep
	}
}

// New creates a templater
func New(docs DocumentService, bindings Bindings, opts ...Option) *Templater {
	t := &Templater{
		docs:         docs,
		bindings:     bindings,
		titleColumns: []string{"Name", "ID"},
		titleSep:     " - ",
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Bindings returns the configured bindings
func (t *Templater) Bindings() Bindings { return t.bindings }

// Title names the copy for rec, falling back to its position
func (t *Templater) Title(rec dataset.Record, index int) string {
	parts := make([]string, 0, len(t.titleColumns))

	for _, col := range t.titleColumns {
		v, ok := rec.Get(col)
		if !ok {
			continue
		}

		if s := strings.TrimSpace(v.String()); s != "" {
			parts = append(parts, s)
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("record %d", index+1)
	}

	return strings.Join(parts, t.titleSep)
}

// Produce copies templateID and fills it from rec with a single substitution
// call. Failures are recorded on the outcome rather than returned.
func (t *Templater) Produce(ctx context.Context, templateID string, rec dataset.Record, index int) share.Outcome {
	outcome := share.Outcome{Index: index, Title: t.Title(rec, index), Status: share.StatusPending}

	if err := ctx.Err(); err != nil {
		return outcome.Fail("cancelled: " + err.Error())
	}

	replacements, err := t.bindings.Replacements(rec)
	if err != nil {
		return outcome.Fail(err.Error())
	}

	artifactID, err := t.docs.Copy(ctx, templateID, outcome.Title)
	if err != nil {
		return outcome.Fail("copy failed: " + errors.Wrap(err, errors.ErrTypeArtifact, "copy template").Error())
	}

	outcome.ArtifactID = artifactID
	outcome.Status = share.StatusCreated

	if err := t.docs.Substitute(ctx, artifactID, replacements); err != nil {
		return outcome.Fail("populate failed: " + errors.Wrap(err, errors.ErrTypeArtifact, "substitute placeholders").Error())
	}

	outcome.Status = share.StatusPopulated

	return outcome
}
