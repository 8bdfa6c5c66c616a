package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/kyleking/slidefill/internal/config"
	"github.com/kyleking/slidefill/internal/dataset"
	"github.com/kyleking/slidefill/internal/errors"
	"github.com/kyleking/slidefill/internal/pool"
	"github.com/kyleking/slidefill/internal/templater"
)

var testBackoff = pool.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond, MaxRetries: 3}

type request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]interface{}
}

// fakeAPI records every request and answers with the handler for the first matching path fragment
type fakeAPI struct {
	mu       sync.Mutex
	requests []request
	routes   map[string]http.HandlerFunc
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := request{Method: r.Method, Path: r.URL.Path, Query: map[string]string{}}
	for k := range r.URL.Query() {
		rec.Query[k] = r.URL.Query().Get(k)
	}

	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	for fragment, h := range f.routes {
		if strings.Contains(r.URL.Path, fragment) {
			h(w, r)
			return
		}
	}

	writeError(w, http.StatusNotFound, "no route for "+r.URL.Path)
}

func (f *fakeAPI) recorded() []request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]request(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": status, "message": message},
	})
}

func newTestClient(t *testing.T, routes map[string]http.HandlerFunc) (*Client, *fakeAPI) {
	t.Helper()

	api := &fakeAPI{routes: routes}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), config.GoogleConfig{}, testBackoff,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	return c, api
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.GoogleConfig{}, testBackoff)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestCopy(t *testing.T) {
	c, api := newTestClient(t, map[string]http.HandlerFunc{
		"/copy": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]string{"id": "artifact-1", "name": "Jon - 1"})
		},
	})

	id, err := c.Copy(context.Background(), "template-123", "Jon - 1")
	require.NoError(t, err)
	assert.Equal(t, "artifact-1", id)

	reqs := api.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.True(t, strings.HasSuffix(reqs[0].Path, "files/template-123/copy"), reqs[0].Path)
	assert.Equal(t, "Jon - 1", reqs[0].Body["name"])
	assert.Equal(t, "true", reqs[0].Query["supportsAllDrives"])
}

func TestCopyNotFound(t *testing.T) {
	c, _ := newTestClient(t, map[string]http.HandlerFunc{
		"/copy": func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "File not found: template-404")
		},
	})

	_, err := c.Copy(context.Background(), "template-404", "x")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	assert.Equal(t, "template-404", errors.GetSubject(err))
}

func TestCopyRetriesRateLimit(t *testing.T) {
	var calls int32

	c, _ := newTestClient(t, map[string]http.HandlerFunc{
		"/copy": func(w http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				writeError(w, http.StatusTooManyRequests, "Rate Limit Exceeded")
				return
			}

			writeJSON(w, map[string]string{"id": "artifact-2"})
		},
	})

	id, err := c.Copy(context.Background(), "template-123", "t")
	require.NoError(t, err)
	assert.Equal(t, "artifact-2", id)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCopyGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32

	c, _ := newTestClient(t, map[string]http.HandlerFunc{
		"/copy": func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeError(w, http.StatusTooManyRequests, "Rate Limit Exceeded")
		},
	})

	_, err := c.Copy(context.Background(), "template-123", "t")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeRateLimit))
	assert.Equal(t, int32(testBackoff.MaxRetries+1), atomic.LoadInt32(&calls))
}

func TestSubstituteSingleBatch(t *testing.T) {
	c, api := newTestClient(t, map[string]http.HandlerFunc{
		"v1/presentations": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]string{"presentationId": "artifact-1"})
		},
	})

	err := c.Substitute(context.Background(), "artifact-1", []templater.Replacement{
		{Placeholder: "**Employee Name**", Value: "Jon"},
		{Placeholder: "**Age**", Value: "34"},
	})
	require.NoError(t, err)

	reqs := api.recorded()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].Path, "v1/presentations/artifact-1:batchUpdate"), reqs[0].Path)

	batch, ok := reqs[0].Body["requests"].([]interface{})
	require.True(t, ok)
	require.Len(t, batch, 2)

	first := batch[0].(map[string]interface{})["replaceAllText"].(map[string]interface{})
	assert.Equal(t, "Jon", first["replaceText"])
	assert.Equal(t, "**Employee Name**", first["containsText"].(map[string]interface{})["text"])
}

func TestSubstituteNothing(t *testing.T) {
	c, api := newTestClient(t, nil)

	require.NoError(t, c.Substitute(context.Background(), "artifact-1", nil))
	assert.Empty(t, api.recorded())
}

func TestGrantWithoutNotification(t *testing.T) {
	c, api := newTestClient(t, map[string]http.HandlerFunc{
		"/permissions": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]string{"id": "perm-1"})
		},
	})

	require.NoError(t, c.Grant(context.Background(), "artifact-1", "reviewer@example.com", "writer"))

	reqs := api.recorded()
	require.Len(t, reqs, 1)
	assert.True(t, strings.HasSuffix(reqs[0].Path, "files/artifact-1/permissions"), reqs[0].Path)
	assert.Equal(t, "false", reqs[0].Query["sendNotificationEmail"])
	assert.Equal(t, "user", reqs[0].Body["type"])
	assert.Equal(t, "writer", reqs[0].Body["role"])
	assert.Equal(t, "reviewer@example.com", reqs[0].Body["emailAddress"])
}

func TestGrantForbidden(t *testing.T) {
	c, _ := newTestClient(t, map[string]http.HandlerFunc{
		"/permissions": func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
		},
	})

	err := c.Grant(context.Background(), "artifact-1", "reviewer@example.com", "writer")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
}

func sheetRoutes(files []map[string]string, values [][]interface{}) map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"v4/spreadsheets/": func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.URL.Path, "/values/") {
				writeJSON(w, map[string]interface{}{"sheets": []map[string]interface{}{
					{"properties": map[string]interface{}{"title": "Archive", "index": 1}},
					{"properties": map[string]interface{}{"title": "Jon's team", "index": 0}},
				}})

				return
			}

			writeJSON(w, map[string]interface{}{"range": "A1:F7", "majorDimension": "ROWS", "values": values})
		},
		"/files": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]interface{}{"files": files})
		},
	}
}

func TestSheetsSourceLoad(t *testing.T) {
	values := [][]interface{}{
		{"ID", "Name", "Occupation", "Country", "Age"},
		{1000000, "Jon", "Engineer", "Spain", 34},
		{"2", "Ana", "Data scientist", "UK", "29"},
		{"3", "Luis", "", "Spain", "41"},
	}

	c, api := newTestClient(t, sheetRoutes([]map[string]string{{"id": "sheet-1", "name": "Employees"}}, values))

	ds, report, err := NewSheetsSource(c, "").Load(context.Background(), "Employee's list")
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, 3, report.TotalRows)
	assert.Len(t, report.Dropped, 1)

	age, ok := ds.Schema().Lookup("Age")
	require.True(t, ok)
	assert.Equal(t, dataset.KindInteger, age.Kind)

	id, _ := ds.Record(0).Get("ID")
	assert.Equal(t, int64(1000000), id.Int(), "large numbers are not rendered in exponent form")

	reqs := api.recorded()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0].Query["q"], `name = 'Employee\'s list'`)
	assert.Contains(t, reqs[0].Query["q"], spreadsheetMimeType)

	assert.True(t, strings.HasSuffix(reqs[1].Path, "v4/spreadsheets/sheet-1"), reqs[1].Path)
	assert.Equal(t, "sheets.properties(title,index)", reqs[1].Query["fields"])

	assert.True(t, strings.HasSuffix(reqs[2].Path, "v4/spreadsheets/sheet-1/values/'Jon''s team'"), reqs[2].Path)
	assert.Equal(t, "UNFORMATTED_VALUE", reqs[2].Query["valueRenderOption"])
	assert.Equal(t, "FORMATTED_STRING", reqs[2].Query["dateTimeRenderOption"])
}

func TestSheetsSourceExplicitRange(t *testing.T) {
	values := [][]interface{}{{"ID", "Name"}, {1, "Jon"}}

	c, api := newTestClient(t, sheetRoutes([]map[string]string{{"id": "sheet-1"}}, values))

	ds, _, err := NewSheetsSource(c, " Staff!A1:B20 ").Load(context.Background(), "Employees")
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	reqs := api.recorded()
	require.Len(t, reqs, 2, "no worksheet lookup when a range is given")
	assert.True(t, strings.HasSuffix(reqs[1].Path, "values/Staff!A1:B20"), reqs[1].Path)
}

func TestCells(t *testing.T) {
	assert.Equal(t, []string{"1000000", "2.5", "x", "", "true"},
		cells([]interface{}{float64(1000000), 2.5, "x", nil, true}))
}

func TestSheetsSourceNotFound(t *testing.T) {
	c, api := newTestClient(t, sheetRoutes(nil, nil))

	_, _, err := NewSheetsSource(c, "Sheet1").Load(context.Background(), "Missing")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	assert.Equal(t, "Missing", errors.GetSubject(err))
	assert.Len(t, api.recorded(), 1, "values are not read for a missing spreadsheet")
}

func TestSheetsSourceEmptySheet(t *testing.T) {
	c, _ := newTestClient(t, sheetRoutes([]map[string]string{{"id": "sheet-1"}}, nil))

	_, _, err := NewSheetsSource(c, "Sheet1").Load(context.Background(), "Employees")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestSheetsSourceRequiresName(t *testing.T) {
	c, api := newTestClient(t, nil)

	_, _, err := NewSheetsSource(c, "Sheet1").Load(context.Background(), " ")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	assert.Empty(t, api.recorded())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil, "x"))
	assert.True(t, errors.IsType(classify(context.DeadlineExceeded, "x"), errors.ErrTypeNetwork))
}
