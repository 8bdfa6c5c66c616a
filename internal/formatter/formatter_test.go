package formatter

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/processor"
	"github.com/kyleking/slidefill/internal/query"
	"github.com/kyleking/slidefill/internal/share"
	"github.com/kyleking/slidefill/internal/templater"
	"github.com/kyleking/slidefill/internal/testutil"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

func spainResult(t *testing.T) *query.FilterResult {
	t.Helper()

	ds := testutil.EmployeeDataset(t)

	return &query.FilterResult{
		Schema:  ds.Schema(),
		Records: []dataset.Record{ds.Record(0), ds.Record(2)},
		Indices: []int{0, 2},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatTable, "table": FormatTable, " JSON ": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}

func TestFormatResultTable(t *testing.T) {
	out, err := NewFormatter(FormatTable).FormatResult(spainResult(t))
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Contains(t, lines[0], "Occupation")
	assert.Contains(t, out, "Luis")
	assert.Contains(t, out, "Designer")
	assert.NotContains(t, out, "Ana")
	assert.True(t, strings.HasSuffix(out, "2 matching records"), out)
}

func TestFormatResultEmpty(t *testing.T) {
	ds := testutil.EmployeeDataset(t)

	out, err := NewFormatter("").FormatResult(&query.FilterResult{Schema: ds.Schema()})
	require.NoError(t, err)
	assert.Equal(t, "No matching records.", out)
}

func TestFormatResultJSON(t *testing.T) {
	out, err := NewFormatter(FormatJSON).FormatResult(spainResult(t))
	require.NoError(t, err)

	var decoded struct {
		Count   int                      `json:"count"`
		Indices []int                    `json:"indices"`
		Records []map[string]interface{} `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))

	assert.Equal(t, 2, decoded.Count)
	assert.Equal(t, []int{0, 2}, decoded.Indices)
	assert.Equal(t, "Jon", decoded.Records[0]["Name"])
	assert.InDelta(t, 34, decoded.Records[0]["Age"], 0, "integer columns stay numbers")
}

func TestFormatCleanReport(t *testing.T) {
	rows := append(testutil.EmployeeRows(), []string{"7", "Ola", "", "Norway", "30"})

	ds, report, err := dataset.Clean(testutil.EmployeeHeader, rows)
	require.NoError(t, err)

	out, err := NewFormatter(FormatTable).FormatCleanReport(ds, report)
	require.NoError(t, err)

	assert.Contains(t, out, "Loaded 6 of 7 rows")
	assert.Contains(t, out, "Age (integer)")
	assert.Contains(t, out, "Country (text)")
	assert.Contains(t, out, "Excluded 1 row:")
	assert.Contains(t, out, "missing Occupation")
	assert.Contains(t, out, "Ola")
}

func TestFormatCleanReportNothingDropped(t *testing.T) {
	ds, report, err := dataset.Clean(testutil.EmployeeHeader, testutil.EmployeeRows())
	require.NoError(t, err)

	out, err := NewFormatter(FormatTable).FormatCleanReport(ds, report)
	require.NoError(t, err)
	assert.NotContains(t, out, "Excluded")

	out, err = NewFormatter(FormatJSON).FormatCleanReport(ds, report)
	require.NoError(t, err)
	assert.Contains(t, out, `"kept_rows": 6`)
	assert.Contains(t, out, `"ID": "integer"`)
}

func TestFormatPlan(t *testing.T) {
	planned := []processor.Planned{{
		Index: 0,
		Title: "Jon - 1",
		Replacements: []templater.Replacement{
			{Placeholder: "**Employee Name**", Value: "Jon"},
			{Placeholder: "**Age**", Value: "34"},
		},
	}}

	out, err := NewFormatter(FormatTable).FormatPlan(planned)
	require.NoError(t, err)
	assert.Contains(t, out, "**Employee Name** -> Jon; **Age** -> 34")
	assert.Contains(t, out, "Dry run: 1 artifact would be created")

	out, err = NewFormatter(FormatTable).FormatPlan(nil)
	require.NoError(t, err)
	assert.Equal(t, "Nothing to share.", out)
}

func TestFormatReport(t *testing.T) {
	report := share.NewReport("run-1", testutil.TestRecipient, []share.Outcome{
		{Index: 0, Title: "Jon - 1", ArtifactID: "a1", Status: share.StatusShared},
		share.Outcome{Index: 2, Title: "Luis - 3"}.Fail("copy failed: quota"),
	}, 1500*time.Millisecond)

	out, err := NewFormatter(FormatTable).FormatReport(report)
	require.NoError(t, err)

	assert.Contains(t, out, "Jon - 1")
	assert.Contains(t, out, "copy failed: quota")
	assert.Contains(t, out, "Shared 1 of 2 with reviewer@example.com in 1.5s (run run-1)")

	out, err = NewFormatter(FormatJSON).FormatReport(report)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "failed"`)
	assert.Contains(t, out, `"shared": 1`)

	report.Role = share.RoleWriter
	out, err = NewFormatter(FormatTable).FormatReport(report)
	require.NoError(t, err)
	assert.Contains(t, out, "(run run-1, role writer)")
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "500µs", humanizeDuration(500*time.Microsecond))
	assert.Equal(t, "12ms", humanizeDuration(12345*time.Microsecond))
	assert.Equal(t, "2.3s", humanizeDuration(2345*time.Millisecond))
}
