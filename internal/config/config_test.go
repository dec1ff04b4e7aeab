package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	c := &Config{}
	c.SetDefaults()
	assert.Equal(t, 0.8, c.Inference.MultiplesThreshold)
	assert.Equal(t, 0.8, c.Inference.ArithmeticThreshold)
	assert.Equal(t, 3, c.Inference.ResponseSampleSize)
	assert.Equal(t, []int{200}, c.Filter.SuccessStatuses)
	assert.Empty(t, c.Filter.IgnoreExtensions)
	assert.Empty(t, c.Filter.IgnorePaths)
	assert.Empty(t, c.Filter.IgnoreSubstrings)
	assert.NotEmpty(t, c.Sanitize.QueryParams)
	assert.Equal(t, 3000, c.Server.Port)
	assert.Equal(t, "127.0.0.1", c.Server.Host)
	assert.Equal(t, 5, c.Capture.Workers)
	assert.Equal(t, 20*time.Second, c.Capture.PageTimeout)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadFromYAML(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	body := "inference:\n  multiples_threshold: 0.9\nserver:\n  port: 8080\ncapture:\n  page_timeout: 5s\noutput:\n  dir: ./out\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Inference.MultiplesThreshold)
	assert.Equal(t, 0.8, cfg.Inference.ArithmeticThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Capture.PageTimeout)
	assert.Equal(t, "./out", cfg.Output.Dir)
}

func TestLoadKeepsExplicitEmptyLists(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	body := "filter:\n  ignore_paths: []\n  ignore_extensions: [.js]\nsanitize:\n  query_params: []\ncapture:\n  skip_extensions: []\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Empty(t, cfg.Filter.IgnorePaths)
	assert.Equal(t, []string{".js"}, cfg.Filter.IgnoreExtensions)
	assert.Empty(t, cfg.Sanitize.QueryParams)
	assert.Empty(t, cfg.Capture.SkipExtensions)
	assert.NotEmpty(t, cfg.Sanitize.BodyFields)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Inference.MultiplesThreshold)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("APISCOUT_ARITHMETIC_THRESHOLD", "0.5")
	t.Setenv("APISCOUT_SERVER_PORT", "9999")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Inference.ArithmeticThreshold)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Output.Dir = t.TempDir()
	require.NoError(t, c.ValidateOutput())

	c.Inference.MultiplesThreshold = 1.5
	assert.Error(t, c.Validate())

	c = Default()
	c.Output.Formats = []string{"pdf"}
	assert.Error(t, c.Validate())
}
