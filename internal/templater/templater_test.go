package templater_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/share"
	"github.com/kyleking/slidefill/internal/templater"
	"github.com/kyleking/slidefill/internal/testutil"
)

func TestParseBindings(t *testing.T) {
	b, err := templater.ParseBindings([]string{"**Employee ID**=ID", " {{a=b}} = Name "})
	require.NoError(t, err)
	assert.Equal(t, templater.Bindings{
		{Placeholder: "**Employee ID**", Column: "ID"},
		{Placeholder: "{{a=b}}", Column: "Name"},
	}, b)

	for _, bad := range []string{"noequals", "=ID", "placeholder=", "  =ID"} {
		_, err := templater.ParseBindings([]string{bad})
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig), bad)
	}

	_, err = templater.ParseBindings([]string{"X=ID", "X=Name"})
	assert.Error(t, err, "duplicate placeholder")
}

func TestBindingsCheck(t *testing.T) {
	ds := testutil.EmployeeDataset(t)

	require.NoError(t, templater.DefaultBindings().Check(ds.Schema()))

	bad := append(templater.DefaultBindings(), templater.Binding{Placeholder: "**Salary**", Column: "Salary"})
	err := bad.Check(ds.Schema())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeSchemaMismatch))
	assert.Equal(t, "Salary", errors.GetSubject(err))
}

func TestProduceJonSpain(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	docs := testutil.NewMockDocuments()
	tpl := templater.New(docs, templater.DefaultBindings())

	out := tpl.Produce(context.Background(), testutil.TestTemplateID, ds.Record(0), 0)

	assert.Equal(t, share.StatusPopulated, out.Status)
	assert.Equal(t, "Jon - 1", out.Title)
	assert.NotEmpty(t, out.ArtifactID)
	assert.Equal(t, 1, docs.CallCount("Copy"))
	assert.Equal(t, 1, docs.CallCount("Substitute"), "one batched substitution per record")

	subs := docs.Substitutions()
	require.Len(t, subs, 1)
	assert.Equal(t, []templater.Replacement{
		{Placeholder: "**Employee ID**", Value: "1"},
		{Placeholder: "**Employee Name**", Value: "Jon"},
		{Placeholder: "**Occupation**", Value: "Engineer"},
		{Placeholder: "**Country**", Value: "Spain"},
		{Placeholder: "**Age**", Value: "34"},
	}, subs[0].Replacements)
}

func TestProduceCopyFailure(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	docs := testutil.NewMockDocuments(testutil.WithCopyError("Jon - 1", stderrors.New("storage quota exceeded")))

	out := templater.New(docs, templater.DefaultBindings()).Produce(context.Background(), testutil.TestTemplateID, ds.Record(0), 0)

	assert.Equal(t, share.StatusFailed, out.Status)
	assert.Empty(t, out.ArtifactID)
	assert.Contains(t, out.Reason, "copy failed")
	assert.Contains(t, out.Reason, "storage quota exceeded")
	assert.Equal(t, 0, docs.CallCount("Substitute"))
}

func TestProduceSubstituteFailureKeepsArtifact(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	docs := testutil.NewMockDocuments(testutil.WithSubstituteError("Ana - 2", stderrors.New("bad request")))

	out := templater.New(docs, templater.DefaultBindings()).Produce(context.Background(), testutil.TestTemplateID, ds.Record(1), 1)

	assert.Equal(t, share.StatusFailed, out.Status)
	assert.NotEmpty(t, out.ArtifactID)
	assert.Contains(t, out.Reason, "populate failed")
}

func TestProduceCancelled(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	docs := testutil.NewMockDocuments()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := templater.New(docs, templater.DefaultBindings()).Produce(ctx, testutil.TestTemplateID, ds.Record(0), 0)

	assert.Equal(t, share.StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "cancelled")
	assert.Equal(t, 0, docs.CallCount("Copy"))
}

func TestTitle(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	docs := testutil.NewMockDocuments()

	custom := templater.New(docs, nil, templater.WithTitleColumns("Country", "Name"), templater.WithTitleSeparator(" / "))
	assert.Equal(t, "Spain / Jon", custom.Title(ds.Record(0), 0))

	other := testutil.MustClean(t, []string{"Code"}, [][]string{{"x"}})
	assert.Equal(t, "record 4", templater.New(docs, nil).Title(other.Record(0), 3))
}

func TestReplacementsStringifyIntegers(t *testing.T) {
	schema := dataset.MustSchema(dataset.Column{Name: "Age", Kind: dataset.KindInteger})
	ds, err := dataset.New(schema, [][]dataset.Value{{dataset.Int(-3)}})
	require.NoError(t, err)

	reps, err := templater.Bindings{{Placeholder: "{{age}}", Column: "Age"}}.Replacements(ds.Record(0))
	require.NoError(t, err)
	assert.Equal(t, "-3", reps[0].Value)
}
