package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "docsync", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 3, cfg.Scheduler.RetryAttempts)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, "file", cfg.Cursor.Backend)
	assert.Equal(t, "2024", cfg.Dropbox.NamespaceName)
	assert.Equal(t, int64(2562607316), cfg.Monday.POBoardID)
	assert.Equal(t, "2023-10", cfg.Monday.APIVersion)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Model)
	assert.Equal(t, 1000, cfg.OpenAI.MaxTokens)
	assert.Equal(t, 65*time.Second, cfg.Xero.RateLimitWait)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCSYNC_DATABASE_DRIVER", "mysql")
	t.Setenv("DOCSYNC_DROPBOX_APP_SECRET", "s3cret")
	t.Setenv("DOCSYNC_SCHEDULER_POLL_INTERVAL", "10s")
	t.Setenv("DOCSYNC_MONDAY_PO_BOARD_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "s3cret", cfg.Dropbox.AppSecret)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, int64(42), cfg.Monday.POBoardID)
}

func TestLoadFrom_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
driver = "sqlite"
path = "/tmp/events.db"

[cursor]
backend = "file"
directory = "/var/lib/docsync/cursors"

[monday]
api_token = "tok"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/events.db", cfg.Database.DSN())
	assert.Equal(t, "/var/lib/docsync/cursors", cfg.Cursor.Directory)
	assert.Equal(t, "tok", cfg.Monday.APIToken)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"idle exceeds open", func(c *Config) { c.Database.MaxIdleConns = 100 }, "max_idle_conns"},
		{"redis cursor without redis", func(c *Config) { c.Cursor.Backend = "redis" }, "redis.enabled"},
		{"bad sampling ratio", func(c *Config) { c.Telemetry.SamplingRatio = 2 }, "sampling_ratio"},
		{"profiling without address", func(c *Config) { c.Telemetry.ProfilingEnabled = true }, "pyroscope_address"},
		{"production without dropbox secret", func(c *Config) { c.App.Env = "production" }, "dropbox.app_secret"},
		{"production without board webhook auth", func(c *Config) {
			c.App.Env = "production"
			c.Dropbox.AppSecret = "x"
			c.Monday.APIToken = "y"
		}, "monday.signing_secret"},
		{"production with plain postgres", func(c *Config) {
			c.App.Env = "production"
			c.Dropbox.AppSecret = "x"
			c.Monday.WebhookToken = "y"
		}, "sslmode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", User: "u", Password: "p@ss", Host: "db", Port: 5432, DBName: "docsync", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5432/docsync?sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", User: "u", Password: "p", Host: "db", Port: 3306, DBName: "docsync"}
	assert.Equal(t, "u:p@tcp(db:3306)/docsync?charset=utf8mb4&parseTime=True&loc=UTC", my.DSN())
}
