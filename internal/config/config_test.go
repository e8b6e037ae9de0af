package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SEC_IDENTITY", "Holdings Desk ops@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"13F-HR", "13F-HR/A"}, cfg.FormTypes)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 10.0, cfg.RateLimitPerSecond)
	assert.Equal(t, 30*time.Second, cfg.RetryCooldown)
	assert.Equal(t, 20000, cfg.ChunkSize)
	assert.Equal(t, BulkModeInsert, cfg.BulkMode)
	assert.Equal(t, 60*time.Second, cfg.PingInterval)
	assert.Equal(t, 10*time.Second, cfg.PingTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "ciks.txt", cfg.CIKFile)
	assert.Equal(t, ":8080", cfg.AdminAddr())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SEC_IDENTITY", "Holdings Desk ops@example.com")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/holdings.db")
	t.Setenv("NOTIFY_URLS", "http://a.example/hook, ,http://b.example/hook")
	t.Setenv("FORM_TYPES", "13F-HR")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, []string{"http://a.example/hook", "http://b.example/hook"}, cfg.NotifyURLs)
	assert.Equal(t, []string{"13F-HR"}, cfg.FormTypes)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "sqlite:/tmp/holdings.db", cfg.Database.Redacted())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing identity", map[string]string{"SEC_IDENTITY": ""}},
		{"bad driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"zero chunk", map[string]string{"CHUNK_SIZE": "0"}},
		{"negative rate", map[string]string{"RATE_LIMIT_PER_SECOND": "-1"}},
		{"copy on sqlite", map[string]string{"DB_DRIVER": "sqlite", "BULK_MODE": "copy"}},
		{"unknown bulk mode", map[string]string{"BULK_MODE": "merge"}},
		{"admin key without secret", map[string]string{"ADMIN_API_KEY": "ops", "JWT_SECRET": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SEC_IDENTITY", "Holdings Desk ops@example.com")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRedacted_HidesPassword(t *testing.T) {
	d := DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: 5432, User: "sec", Password: "hunter2", Name: "sec", SSLMode: "require"}
	assert.NotContains(t, d.Redacted(), "hunter2")
	assert.Contains(t, d.PostgresDSN(), "password=hunter2")
}

func TestLoadDatabase(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/cli.db")

	d, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, d.Driver)
	assert.Equal(t, "/tmp/cli.db", d.SQLitePath)

	t.Setenv("DB_DRIVER", "oracle")
	_, err = LoadDatabase()
	assert.Error(t, err)
}
