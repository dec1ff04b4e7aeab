package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/apiscout/internal/config"
	"github.com/yourorg/apiscout/internal/metrics"
	"github.com/yourorg/apiscout/internal/render"
	"github.com/yourorg/apiscout/internal/store"
)

var capturePath = filepath.Join("..", "..", "testdata", "capture.jsonl")

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Formats = []string{"text", "json", "markdown", "openapi"}
	return cfg
}

func TestAnalyzeCaptureFile(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.New()
	var stages []string

	res, err := Analyze(capturePath, Options{
		Config:   cfg,
		Metrics:  m,
		Render:   true,
		Progress: func(s string) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Load.Malformed)
	assert.Equal(t, 6, res.Filter.Kept)
	require.Len(t, res.Catalog.Routes, 3)
	assert.Equal(t, "GET /api/users/{int}", res.Catalog.Routes[0].Key())
	assert.Equal(t, capturePath, res.Catalog.Source)
	assert.Len(t, res.Written, 4)
	for _, name := range []string{render.TextFile, render.JSONFile, render.MarkdownFile, render.OpenAPIFile} {
		_, err := os.Stat(filepath.Join(cfg.Output.Dir, name))
		assert.NoError(t, err, name)
	}
	assert.NotEmpty(t, stages)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Routes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("status")))
}

func TestAnalyzeKeepsAssetLikeAPIRoutes(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "assets.jsonl")
	lines := `{"url": "https://h.example.com/assets/1", "method": "GET", "status": 200, "response_body": {"id": 1}}
{"url": "https://h.example.com/assets/2", "method": "GET", "status": 200, "response_body": {"id": 2}}
{"url": "https://h.example.com/api/app.js", "method": "GET", "status": 200, "response_body": {"v": 1}}
{"url": "https://h.example.com/users/1", "method": "GET", "status": 200, "response_body": {"id": 1}}
`
	require.NoError(t, os.WriteFile(artifact, []byte(lines), 0o644))

	res, err := Analyze(artifact, Options{Config: testConfig(t)})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Filter.Kept)
	_, ok := res.Catalog.Route("GET", "/assets/{int}")
	assert.True(t, ok)

	cfgPath := filepath.Join(dir, "config.yaml")
	yml := "filter:\n  ignore_paths: []\n  ignore_extensions: []\n  ignore_substrings: []\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yml), 0o644))
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Output.Dir = t.TempDir()
	res, err = Analyze(artifact, Options{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Filter.Kept)
	assert.Empty(t, res.Filter.Dropped)

	cfg.Filter.IgnorePaths = []string{"/assets/"}
	cfg.Filter.IgnoreExtensions = []string{".js"}
	res, err = Analyze(artifact, Options{Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Filter.Kept)
	assert.Equal(t, map[string]int{"path": 2, "extension": 1}, res.Filter.Dropped)
}

func TestAnalyzeMissingArtifact(t *testing.T) {
	res, err := Analyze(filepath.Join(t.TempDir(), "absent.jsonl"), Options{Config: testConfig(t)})
	require.NoError(t, err)
	assert.Empty(t, res.Catalog.Routes)
	assert.Nil(t, res.Written)
}

func TestAnalyzeHAR(t *testing.T) {
	res, err := Analyze(filepath.Join("..", "..", "testdata", "sample.har"), Options{Config: testConfig(t)})
	require.NoError(t, err)
	// the 201 entry does not qualify under the default success statuses
	require.Len(t, res.Catalog.Routes, 1)
	assert.Equal(t, "GET /api/users/{int}", res.Catalog.Routes[0].Key())
}

func TestAnalyzeRedactsExamples(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sanitize.QueryParams = []string{"q"}
	res, err := Analyze(capturePath, Options{Config: cfg})
	require.NoError(t, err)
	search, ok := res.Catalog.Route("GET", "/api/search")
	require.True(t, ok)
	assert.Equal(t, []string{cfg.Sanitize.Replacement}, search.Query["q"])
}

func TestAnalyzeSavesAndReanalyzes(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "apiscout.db"))
	require.NoError(t, err)
	defer st.Close()
	cfg := testConfig(t)

	res, err := Analyze(capturePath, Options{Config: cfg, Store: st})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, store.StatusAnalyzed, res.Session.Status)
	assert.Equal(t, 3, res.Session.RouteCount)
	assert.Equal(t, "shop.example.com", res.Session.Host)

	saved, err := st.GetCatalog(res.Session.ID)
	require.NoError(t, err)
	assert.Len(t, saved.Routes, 3)

	again, err := Reanalyze(res.Session.ID, Options{Config: cfg, Store: st})
	require.NoError(t, err)
	assert.Equal(t, res.Catalog.Routes, again.Catalog.Routes)

	_, err = Reanalyze("sess_missing", Options{Config: cfg, Store: st})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
