package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfigFrom(filepath.Join(t.TempDir(), "missing.json"), envMap(nil))
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, ".steps", cfg.StepsQuery)
	assert.Equal(t, "s1", cfg.Scenario)
	assert.Equal(t, "plancheck.db", filepath.Base(cfg.DBPath))
}

func TestLoadConfig_Layering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug","pool_size":8,"scenario":"s3"}`), 0o644))

	cfg := loadConfigFrom(path, envMap(nil))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, "s3", cfg.Scenario)

	cfg = loadConfigFrom(path, envMap(map[string]string{
		"PLANCHECK_LOG_LEVEL":   "warn",
		"PLANCHECK_POOL_SIZE":   "2",
		"PLANCHECK_DB_PATH":     "/tmp/x.db",
		"PLANCHECK_STEPS_QUERY": ".plan.steps",
		"PLANCHECK_SCENARIO":    "s4",
	}))
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, ".plan.steps", cfg.StepsQuery)
	assert.Equal(t, "s4", cfg.Scenario)
}

func TestLoadConfig_BadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pool_size":-3}`), 0o644))

	cfg := loadConfigFrom(path, envMap(map[string]string{"PLANCHECK_POOL_SIZE": "many"}))
	assert.Equal(t, 4, cfg.PoolSize)
}

func TestConfigDSN(t *testing.T) {
	assert.Equal(t, "file:/data/p.db", Config{DBPath: "/data/p.db"}.dsn())
	assert.Equal(t, "file:/data/p.db", Config{DBPath: "file:/data/p.db"}.dsn())
	assert.Equal(t, "libsql://db.example.com", Config{DBPath: "libsql://db.example.com"}.dsn())

	assert.Equal(t, "/data", localDBDir("file:/data/p.db"))
	assert.Equal(t, "", localDBDir("libsql://db.example.com"))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tc := range tests {
		got, err := parseLogLevel(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
	_, err := parseLogLevel("loud")
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseSince("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), *got)

	got, err = parseSince("2026-02-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.February, got.Month())

	_, err = parseSince("yesterday", now)
	assert.Error(t, err)
}
