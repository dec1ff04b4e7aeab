package infer

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apiscout/internal/loader"
	"github.com/yourorg/apiscout/internal/logging"
	"github.com/yourorg/apiscout/pkg/types"
)

func record(t *testing.T, method, rawURL, body, response string) types.TrafficRecord {
	t.Helper()
	entry := loader.Entry{URL: rawURL, Method: method, Status: 200}
	if body != "" {
		v, err := types.Parse([]byte(body))
		require.NoError(t, err)
		entry.RequestBody = v
	}
	v, err := types.Parse([]byte(response))
	require.NoError(t, err)
	entry.ResponseBody = v
	rec, err := loader.Normalize(entry)
	require.NoError(t, err)
	return rec
}

func usersAndSearch(t *testing.T) []types.TrafficRecord {
	return []types.TrafficRecord{
		record(t, "GET", "https://api.test/users/1", "", `{"id":1,"name":"a"}`),
		record(t, "GET", "https://api.test/users/2", "", `{"id":2,"name":"b"}`),
		record(t, "GET", "https://api.test/users/3", "", `{"id":3,"name":"c"}`),
		record(t, "GET", "https://api.test/search?q=a", "", `[1,2,3,4]`),
		record(t, "GET", "https://api.test/search?q=b", "", `[5]`),
	}
}

func totalCount(c *types.Catalog) int {
	n := 0
	for _, r := range c.Routes {
		n += r.Stats.Count
	}
	return n
}

func TestRunUsersAndSearch(t *testing.T) {
	catalog := NewEngine().Run(usersAndSearch(t))
	require.Len(t, catalog.Routes, 2)
	assert.Equal(t, 5, catalog.Records)

	users := catalog.Routes[0]
	assert.Equal(t, "GET /users/{int}", users.Key())
	assert.Equal(t, "https://api.test/users/{int}", users.URL)
	require.Len(t, users.Params, 1)
	p := users.Params[0]
	assert.Equal(t, "int", p.Name)
	assert.Equal(t, 1, p.Position)
	assert.Equal(t, types.DomainArithmetic, p.Kind)
	assert.Equal(t, int64(1), p.Step)
	require.NotNil(t, p.Min)
	require.NotNil(t, p.Max)
	assert.Equal(t, int64(1), *p.Min)
	assert.Equal(t, int64(3), *p.Max)
	assert.Equal(t, 3, p.Distinct)
	assert.Equal(t, types.RouteStats{Count: 3, ResponsesUnique: 3, PathVariants: 3}, users.Stats)
	assert.Equal(t, "object", users.Response.Kind)
	assert.Equal(t, []types.FieldType{{Name: "id", Type: "integer"}, {Name: "name", Type: "string"}}, users.Response.Fields)

	search := catalog.Routes[1]
	assert.Equal(t, "GET /search", search.Key())
	assert.Empty(t, search.Params)
	assert.Equal(t, 2, search.Stats.QueryVariants)
	assert.Equal(t, 0, search.Stats.PathVariants)
	assert.Equal(t, map[string][]string{"q": {"a"}}, search.Query)
	assert.Equal(t, "array", search.Response.Kind)
	assert.Equal(t, "[1,2,3]", search.Response.Description())

	assert.Equal(t, 5, totalCount(catalog))
}

func TestRunIsDeterministic(t *testing.T) {
	records := usersAndSearch(t)
	e := NewEngine()
	assert.Equal(t, e.Run(records), e.Run(records))
}

func TestRunDoesNotModifyInput(t *testing.T) {
	records := usersAndSearch(t)
	before := make([]types.TrafficRecord, len(records))
	copy(before, records)
	NewEngine().Run(records)
	assert.Equal(t, before, records)
}

func TestRunEmpty(t *testing.T) {
	catalog := NewEngine().Run(nil)
	assert.NotNil(t, catalog.Routes)
	assert.Empty(t, catalog.Routes)
}

func TestBodyVariantsBlockGeneralization(t *testing.T) {
	records := []types.TrafficRecord{
		record(t, "POST", "http://h/items/1", `{"qty":1}`, `{"ok":true}`),
		record(t, "POST", "http://h/items/1", `{"qty":2,"note":"gift"}`, `{"ok":true}`),
		record(t, "POST", "http://h/items/1", `{"qty":3}`, `{"ok":true}`),
	}
	catalog := NewEngine().Run(records)
	require.Len(t, catalog.Routes, 1)
	r := catalog.Routes[0]
	assert.Equal(t, "/items/1", r.Template)
	assert.Equal(t, 3, r.Stats.BodyVariants)
	assert.Equal(t, 1, r.Stats.ResponsesUnique)
	assert.Equal(t, `{"note":"gift","qty":2}`, r.Body.Canonical())
}

func TestOverlappingTemplatesPreferMostSpecific(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	records := []types.TrafficRecord{
		record(t, "GET", "http://h/items/5?x=1", "", `{"id":5}`),
		record(t, "GET", "http://h/items/5?x=2", "", `{"id":5}`),
		record(t, "GET", "http://h/items/6", "", `{"id":6}`),
		record(t, "GET", "http://h/items/7", "", `{"id":7}`),
	}
	catalog := NewEngine(WithLogger(logger)).Run(records)
	require.Len(t, catalog.Routes, 2)

	literal, ok := catalog.Route("GET", "/items/5")
	require.True(t, ok)
	assert.Equal(t, 2, literal.Stats.Count)
	assert.Equal(t, []string{"/items/{int}"}, literal.AmbiguousWith)

	general, ok := catalog.Route("GET", "/items/{int}")
	require.True(t, ok)
	assert.Equal(t, 2, general.Stats.Count)
	assert.Empty(t, general.AmbiguousWith)

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
			assert.Equal(t, "/items/5", e.Data["chosen"])
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestUnmatchedRecordBecomesLiteralRoute(t *testing.T) {
	records := []types.TrafficRecord{
		record(t, "GET", "http://h/files/123e4567e89b12d3a456426614174000", "", `{"size":1}`),
	}
	catalog := NewEngine().Run(records)
	require.Len(t, catalog.Routes, 1)
	r := catalog.Routes[0]
	assert.Equal(t, "/files/123e4567e89b12d3a456426614174000", r.Template)
	assert.Empty(t, r.Params)
	assert.Equal(t, 1, r.Stats.Count)
}

func TestMethodsAreSeparate(t *testing.T) {
	records := []types.TrafficRecord{
		record(t, "GET", "http://h/a/1", "", `{"v":1}`),
		record(t, "DELETE", "http://h/a/2", "", `{"v":1}`),
	}
	catalog := NewEngine().Run(records)
	require.Len(t, catalog.Routes, 2)
	assert.Equal(t, "DELETE /a/{int}", catalog.Routes[0].Key())
	assert.Equal(t, "GET /a/{int}", catalog.Routes[1].Key())
}

func TestRepeatedPlaceholderNames(t *testing.T) {
	records := []types.TrafficRecord{
		record(t, "GET", "http://h/a/1/b/2", "", `{"v":1}`),
		record(t, "GET", "http://h/a/2/b/4", "", `{"v":1}`),
		record(t, "GET", "http://h/a/3/b/6", "", `{"v":1}`),
	}
	catalog := NewEngine().Run(records)
	require.Len(t, catalog.Routes, 1)
	params := catalog.Routes[0].Params
	require.Len(t, params, 2)
	assert.Equal(t, "int", params[0].Name)
	assert.Equal(t, "int2", params[1].Name)
	assert.Equal(t, types.DomainArithmetic, params[1].Kind)
	assert.Equal(t, int64(2), params[1].Step)
}

func TestResponseSampleSize(t *testing.T) {
	records := []types.TrafficRecord{
		record(t, "GET", "http://h/list", "", `[1,2,3,4]`),
	}
	catalog := NewEngine(WithResponseSampleSize(1)).Run(records)
	assert.Equal(t, "[1]", catalog.Routes[0].Response.Description())
}

func TestRunOverCaptureFile(t *testing.T) {
	records, _, err := loader.Load(filepath.Join("..", "..", "testdata", "capture.jsonl"), logging.Discard())
	require.NoError(t, err)
	var kept []types.TrafficRecord
	for _, rec := range records {
		if rec.StatusCode == 200 && rec.ResponseBody.Truthy() {
			kept = append(kept, rec)
		}
	}
	require.Len(t, kept, 6)

	catalog := NewEngine().Run(kept)
	assert.Equal(t, len(kept), totalCount(catalog))
	keys := make([]string, 0, len(catalog.Routes))
	for _, r := range catalog.Routes {
		keys = append(keys, r.Key())
	}
	assert.Equal(t, []string{"GET /api/users/{int}", "GET /api/search", "POST /api/orders"}, keys)
}
