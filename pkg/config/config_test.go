package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: https://anon.example.com/api/
  poll_interval: 500ms
components:
  sample_count: 5
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://anon.example.com/api/", cfg.API.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.API.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.API.QueryTimeout, "unset fields keep defaults")
	assert.Equal(t, 5, cfg.Components.SampleCount)
	assert.Equal(t, 0.95, cfg.Components.Confidence)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EXPLORER_API_URL", "http://env/api/")
	t.Setenv("EXPLORER_API_KEY", "secret")
	t.Setenv("PORT", "9000")
	t.Setenv("EXPLORER_META_DB_PATH", "/tmp/meta.sqlite")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://env/api/", cfg.API.URL)
	assert.Equal(t, "secret", cfg.API.Key)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "/tmp/meta.sqlite", cfg.Storage.MetaDBPath)
}

func TestDefault_LocalCancelStaysLocal(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.API.CancelOnAbort, "remote cancel must be opted into")
	assert.Equal(t, 1.0, cfg.Components.MaxSuppressedCountRatio)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, func(k string) string {
		if k == "EXPLORER_MAX_CONCURRENT_QUERIES" {
			return "many"
		}
		return ""
	})
	assert.ErrorContains(t, err, "EXPLORER_MAX_CONCURRENT_QUERIES")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	cfg := Default()
	cfg.API.URL = ""
	cfg.Components.Confidence = 1.5
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "api.url")
	assert.ErrorContains(t, err, "confidence")
	assert.ErrorContains(t, err, "loud")
}
