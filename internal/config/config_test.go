package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8000/api/v1", c.ServerURL)
	assert.Equal(t, 5*time.Minute, c.SyncInterval)
	assert.Equal(t, 7*24*time.Hour, c.OutboxRetention)
	assert.InDelta(t, 0.3, c.ConsistencyThreshold, 1e-9)
	assert.Equal(t, "none", c.Archive.Type)
	require.NoError(t, c.Validate())
}

func TestLoad_NoFlagSetUsesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "regifarm.db", cfg.DatabasePath)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Precedence_FileEnvFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regifarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://file.example.com
database_path: /tmp/from-file.db
sync_interval: 1m
log:
  level: warn
archive:
  type: file
  dir: /tmp/snapshots
`), 0o600))

	t.Setenv("REGIFARM_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("REGIFARM_LOG_LEVEL", "error")

	fs := newFlagSet(t, "--config", path, "--log-level", "debug", "--tenant", "42")
	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.ServerURL, "file overrides default")
	assert.Equal(t, "/tmp/from-env.db", cfg.DatabasePath, "env overrides file")
	assert.Equal(t, "debug", cfg.Log.Level, "flag overrides env")
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, int64(42), cfg.TenantID)
	assert.Equal(t, "file", cfg.Archive.Type)
	assert.Equal(t, "/tmp/snapshots", cfg.Archive.Dir)
}

func TestLoad_EnvDuration(t *testing.T) {
	t.Setenv("REGIFARM_DRAIN_TIMEOUT", "45s")

	cfg, err := Load(newFlagSet(t))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.DrainTimeout)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	fs := newFlagSet(t, "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load(fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"no server", func(c *Config) { c.ServerURL = "" }, "server_url is required"},
		{"zero interval", func(c *Config) { c.SyncInterval = 0 }, "sync_interval must be positive"},
		{"threshold", func(c *Config) { c.ConsistencyThreshold = 1.5 }, "consistency_threshold"},
		{"s3 without bucket", func(c *Config) { c.Archive.Type = "s3" }, "archive.s3_bucket is required"},
		{"http without url", func(c *Config) { c.Archive.Type = "http" }, "archive.upload_url is required"},
		{"unknown archive", func(c *Config) { c.Archive.Type = "tape" }, `unknown archive.type "tape"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
