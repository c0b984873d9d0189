// config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenDefaultPathMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(EnvTrackingURI, "")
	t.Setenv(EnvDBName, "")

	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, 6, cfg.Sources.LookbackDays)
	assert.Equal(t, DefaultPresidents, cfg.Sources.Presidents)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 3, cfg.HTTP.RetryCount)
	assert.Equal(t, 1, cfg.Forecast.MaxOrder)
	assert.Equal(t, 4, cfg.Forecast.Components)
	assert.Equal(t, 52, cfg.Forecast.SeasonalPeriod)
	assert.Equal(t, []string{"disapproving"}, cfg.Forecast.ExcludeColumns)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Tracker.Enabled())
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("nope.yaml", "")
	require.Error(t, err)
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "config.yaml", `
http:
  timeout: 5s
  retry_count: 1
sources:
  lookback_days: 3
  presidents: ["Barack Obama", " george-w-bush ", ""]
database:
  dbname: warehouse
orchestrator:
  concurrent: true
forecast:
  components: 2
`)
	envFile := writeFile(t, dir, "test.env", "MLFLOW_TRACKING_URI=http://mlflow.local\nMLFLOW_TRACKING_USERNAME=fromfile\n")
	t.Setenv(EnvDBHost, "db.internal")
	t.Setenv(EnvTrackingUsername, "fromenv")
	t.Cleanup(func() { os.Unsetenv(EnvTrackingURI) })

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 1, cfg.HTTP.RetryCount)
	assert.Equal(t, 3, cfg.Sources.LookbackDays)
	assert.Equal(t, []string{"barack-obama", "george-w-bush"}, cfg.Sources.Presidents)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Orchestrator.Concurrent)
	assert.Equal(t, 2, cfg.Forecast.Components)
	assert.Equal(t, "http://mlflow.local", cfg.Tracker.URI)
	// variables already present in the environment win over the .env file
	assert.Equal(t, "fromenv", cfg.Tracker.Username)
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "config.yaml", `
http:
  retry_count: 0
forecast:
  max_order: 0
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.HTTP.RetryCount)
	assert.Equal(t, 0, cfg.Forecast.MaxOrder)
	assert.Equal(t, 4, cfg.Forecast.Components)
}

func TestFinalizeValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "s3" }},
		{"azure without credentials", func(c *Config) { c.Storage.Backend = "azure" }},
		{"bad duration", func(c *Config) { c.HTTP.TimeoutStr = "soon" }},
		{"bad table identifier", func(c *Config) { c.Forecast.OutputTable = "orders; DROP TABLE x" }},
		{"train fraction out of range", func(c *Config) { c.Forecast.TrainFraction = 1.5 }},
		{"bad db port", func(c *Config) { c.Database.Port = "mysql" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			assert.Error(t, cfg.Finalize())
		})
	}
}
