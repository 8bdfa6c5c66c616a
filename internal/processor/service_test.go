package processor

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/llm"
	"github.com/kyleking/slidefill/internal/pool"
	"github.com/kyleking/slidefill/internal/query"
	"github.com/kyleking/slidefill/internal/share"
	"github.com/kyleking/slidefill/internal/storage"
	"github.com/kyleking/slidefill/internal/templater"
	"github.com/kyleking/slidefill/internal/testutil"
)

type fixture struct {
	svc     Service
	docs    *testutil.MockDocuments
	granter *testutil.MockGranter
}

type fixtureOption func(*Dependencies)

func withWorkers(n int) fixtureOption {
	return func(d *Dependencies) { d.Pool = pool.NewWorkerPool(n, n, 0) }
}

func withEngine(e query.Engine) fixtureOption {
	return func(d *Dependencies) { d.Engine = e }
}

func newFixture(answer string, docs *testutil.MockDocuments, granter *testutil.MockGranter, opts ...fixtureOption) *fixture {
	deps := Dependencies{
		Translator: query.NewTranslator(testutil.NewAnsweringLLM(answer), llm.DefaultSampling()),
		Templater:  templater.New(docs, templater.DefaultBindings()),
		Broker:     share.NewBroker(granter, share.RoleWriter),
	}

	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{svc: NewService(deps), docs: docs, granter: granter}
}

func TestJonInSpainEndToEnd(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	f := newFixture(`Name == "Jon" and Country == "Spain"`, testutil.NewMockDocuments(), testutil.NewMockGranter(nil))

	result, err := f.svc.TranslateAndFilter(context.Background(), ds, "employees named Jon in Spain")
	require.NoError(t, err)
	require.Equal(t, 1, result.Len())
	assert.Equal(t, []int{0}, result.Indices)

	report, err := f.svc.ShareAll(context.Background(), result, testutil.TestRecipient, testutil.TestTemplateID)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Shared)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, testutil.TestRecipient, report.Recipient)
	assert.Equal(t, share.RoleWriter, report.Role)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, share.StatusShared, report.Outcomes[0].Status)
	assert.Equal(t, "Jon - 1", report.Outcomes[0].Title)

	assert.Equal(t, 1, f.docs.CallCount("Copy"))
	assert.Equal(t, 1, f.docs.CallCount("Substitute"))

	subs := f.docs.Substitutions()
	require.Len(t, subs, 1)
	assert.Equal(t, []templater.Replacement{
		{Placeholder: "**Employee ID**", Value: "1"},
		{Placeholder: "**Employee Name**", Value: "Jon"},
		{Placeholder: "**Occupation**", Value: "Engineer"},
		{Placeholder: "**Country**", Value: "Spain"},
		{Placeholder: "**Age**", Value: "34"},
	}, subs[0].Replacements)

	assert.Equal(t, []testutil.Grant{
		{ArtifactID: subs[0].ArtifactID, Recipient: testutil.TestRecipient, Role: share.RoleWriter},
	}, f.granter.Grants())
}

func TestTranslateAndFilterUnknownColumn(t *testing.T) {
	f := newFixture(`Salary > 50000`, testutil.NewMockDocuments(), testutil.NewMockGranter(nil))

	_, err := f.svc.TranslateAndFilter(context.Background(), testutil.EmployeeDataset(t), "people earning over 50k")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	assert.Equal(t, "Salary", errors.GetSubject(err))
}

func TestTranslateAndFilterWithoutModel(t *testing.T) {
	svc := NewService(Dependencies{})

	_, err := svc.TranslateAndFilter(context.Background(), testutil.EmployeeDataset(t), "anyone")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestLookup(t *testing.T) {
	ds := testutil.EmployeeDataset(t)

	engines := map[string]query.Engine{
		"memory": query.NewMemoryEngine(),
		"duckdb": query.NewSQLEngine(storage.NewTestStore(t)),
	}

	for name, engine := range engines {
		t.Run(name, func(t *testing.T) {
			f := newFixture("", testutil.NewMockDocuments(), testutil.NewMockGranter(nil), withEngine(engine))

			result, err := f.svc.Lookup(context.Background(), ds, "Name", "Jon")
			require.NoError(t, err)
			assert.Equal(t, []int{0, 4}, result.Indices)

			none, err := f.svc.Lookup(context.Background(), ds, "Name", "jon")
			require.NoError(t, err)
			assert.Zero(t, none.Len())

			_, err = f.svc.Lookup(context.Background(), ds, "Surname", "Jon")
			assert.True(t, errors.IsType(err, errors.ErrTypeSchemaMismatch))
		})
	}
}

func TestFilterByParameters(t *testing.T) {
	f := newFixture("", testutil.NewMockDocuments(), testutil.NewMockGranter(nil))

	result, err := f.svc.FilterByParameters(context.Background(), testutil.EmployeeDataset(t),
		query.NewParameters(query.InRange("Age", 30, 45), query.OneOf("Country", "UK")))
	require.NoError(t, err)
	assert.Equal(t, []string{"Mei"}, names(result))
}

func TestFilterByParametersCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture("", testutil.NewMockDocuments(), testutil.NewMockGranter(nil))

	_, err := f.svc.FilterByParameters(ctx, testutil.EmployeeDataset(t), query.NewParameters())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCancelled))
}

func TestShareAllPreflight(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	noAge := testutil.MustClean(t, []string{"ID", "Name", "Occupation", "Country"}, [][]string{{"1", "Jon", "Engineer", "Spain"}})

	all := &query.FilterResult{Schema: ds.Schema(), Records: ds.Records()}
	partial := &query.FilterResult{Schema: noAge.Schema(), Records: noAge.Records()}

	tests := []struct {
		name      string
		result    *query.FilterResult
		recipient string
		template  string
		errType   errors.ErrorType
		subject   string
	}{
		{"missing at sign", all, "reviewer.example.com", testutil.TestTemplateID, errors.ErrTypeInvalidRecipient, "reviewer.example.com"},
		{"two addresses", all, "a@example.com b@example.com", testutil.TestTemplateID, errors.ErrTypeInvalidRecipient, "a@example.com b@example.com"},
		{"empty recipient", all, "", testutil.TestTemplateID, errors.ErrTypeInvalidRecipient, ""},
		{"no template", all, testutil.TestRecipient, "  ", errors.ErrTypeConfig, ""},
		{"bound column missing", partial, testutil.TestRecipient, testutil.TestTemplateID, errors.ErrTypeSchemaMismatch, "Age"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("", testutil.NewMockDocuments(), testutil.NewMockGranter(nil))

			report, err := f.svc.ShareAll(context.Background(), tt.result, tt.recipient, tt.template)
			require.Error(t, err)
			assert.Nil(t, report)
			assert.Equal(t, tt.errType, errors.GetType(err))

			if tt.subject != "" {
				assert.Equal(t, tt.subject, errors.GetSubject(err))
			}

			assert.Zero(t, f.docs.CallCount("Copy"))
			assert.Zero(t, f.docs.CallCount("Substitute"))
			assert.Zero(t, f.granter.Calls())
		})
	}
}

func TestShareAllPartialFailures(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	all := &query.FilterResult{Schema: ds.Schema(), Records: ds.Records(), Indices: []int{0, 1, 2, 3, 4, 5}}

	// one worker keeps artifact numbering in record order
	docs := testutil.NewMockDocuments(
		testutil.WithCopyError("Ana - 2", stderrors.New("quota exhausted")),
		testutil.WithSubstituteError("Luis - 3", stderrors.New("placeholder shape missing")),
	)
	granter := testutil.NewMockGranter(map[string]error{
		testutil.TestTemplateID + "-copy-3": stderrors.New("permission denied"),
	})

	f := newFixture("", docs, granter, withWorkers(1))

	report, err := f.svc.ShareAll(context.Background(), all, testutil.TestRecipient, testutil.TestTemplateID)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, ds.Len())

	want := []struct {
		status   share.Status
		artifact string
		reason   string
	}{
		{share.StatusShared, "template-123-copy-1", ""},
		{share.StatusFailed, "", "copy failed"},
		{share.StatusFailed, "template-123-copy-2", "populate failed"},
		{share.StatusFailed, "template-123-copy-3", "share failed"},
		{share.StatusShared, "template-123-copy-4", ""},
		{share.StatusShared, "template-123-copy-5", ""},
	}

	for i, w := range want {
		o := report.Outcomes[i]
		assert.Equal(t, i, o.Index)
		assert.Equal(t, w.status, o.Status, o.Title)
		assert.Equal(t, w.artifact, o.ArtifactID, o.Title)

		if w.reason != "" {
			assert.True(t, strings.HasPrefix(o.Reason, w.reason), o.Reason)
		}
	}

	assert.Equal(t, 3, report.Shared)
	assert.Len(t, report.Failed(), 3)
	assert.Equal(t, 6, docs.CallCount("Copy"))
	assert.Equal(t, 5, docs.CallCount("Substitute"))
	assert.Equal(t, 4, granter.Calls())
}

func TestShareAllConcurrentKeepsOrder(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	all := &query.FilterResult{Schema: ds.Schema(), Records: ds.Records()}

	docs := testutil.NewMockDocuments(
		testutil.WithCopyError("Mei - 4", stderrors.New("boom")),
		testutil.WithCopyError("Sara - 6", stderrors.New("boom")),
	)

	f := newFixture("", docs, testutil.NewMockGranter(nil), withWorkers(4))

	report, err := f.svc.ShareAll(context.Background(), all, testutil.TestRecipient, testutil.TestTemplateID)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 6)

	titles := make([]string, len(report.Outcomes))
	for i, o := range report.Outcomes {
		titles[i] = o.Title
	}

	assert.Equal(t, []string{"Jon - 1", "Ana - 2", "Luis - 3", "Mei - 4", "Jon - 5", "Sara - 6"}, titles)
	assert.Equal(t, 4, report.Shared)
	assert.Equal(t, share.StatusFailed, report.Outcomes[3].Status)
	assert.Equal(t, share.StatusFailed, report.Outcomes[5].Status)
	assert.Equal(t, 6, docs.CallCount("Copy"))
}

func TestShareAllEmptyResult(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	f := newFixture("", testutil.NewMockDocuments(), testutil.NewMockGranter(nil))

	report, err := f.svc.ShareAll(context.Background(), &query.FilterResult{Schema: ds.Schema()}, testutil.TestRecipient, testutil.TestTemplateID)
	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.Zero(t, report.Shared)
	assert.Zero(t, f.docs.CallCount("Copy"))
}

func TestShareAllCancelled(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	all := &query.FilterResult{Schema: ds.Schema(), Records: ds.Records()}

	block := make(chan struct{})
	defer close(block)

	f := newFixture("", testutil.NewMockDocuments(testutil.WithBlockingCopy(block)), testutil.NewMockGranter(nil), withWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *share.Report, 1)

	go func() {
		report, err := f.svc.ShareAll(ctx, all, testutil.TestRecipient, testutil.TestTemplateID)
		assert.NoError(t, err)
		done <- report
	}()

	require.Eventually(t, func() bool { return f.docs.CallCount("Copy") == 1 }, testutil.ShortTestTimeout, time.Millisecond)
	cancel()

	var report *share.Report
	select {
	case report = <-done:
	case <-time.After(testutil.ShortTestTimeout):
		t.Fatal("ShareAll did not return after cancellation")
	}

	require.Len(t, report.Outcomes, ds.Len())
	assert.Zero(t, report.Shared)

	assert.True(t, strings.HasPrefix(report.Outcomes[0].Reason, "copy failed"), report.Outcomes[0].Reason)

	for _, o := range report.Outcomes[1:] {
		assert.Equal(t, share.StatusFailed, o.Status)
		assert.True(t, strings.HasPrefix(o.Reason, "cancelled: "), o.Reason)
	}

	assert.Equal(t, 1, f.docs.CallCount("Copy"))
	assert.Zero(t, f.granter.Calls())
}

func TestPreview(t *testing.T) {
	ds := testutil.EmployeeDataset(t)
	svc := NewService(Dependencies{Templater: templater.New(nil, templater.DefaultBindings())})

	result := &query.FilterResult{Schema: ds.Schema(), Records: ds.Records()[1:2], Indices: []int{1}}

	planned, err := svc.Preview(result, testutil.TestRecipient, testutil.TestTemplateID)
	require.NoError(t, err)
	require.Len(t, planned, 1)
	assert.Equal(t, 1, planned[0].Index)
	assert.Equal(t, "Ana - 2", planned[0].Title)
	assert.Len(t, planned[0].Replacements, 5)

	_, err = svc.Preview(result, "nobody", testutil.TestTemplateID)
	assert.True(t, errors.IsType(err, errors.ErrTypeInvalidRecipient))
}

func names(r *query.FilterResult) []string {
	out := make([]string, 0, r.Len())

	for _, rec := range r.Records {
		v, _ := rec.Get("Name")
		out = append(out, v.Text())
	}

	return out
}
