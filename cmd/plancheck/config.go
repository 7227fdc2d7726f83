package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all plancheck configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	PoolSize   int    `json:"pool_size"`
	StepsQuery string `json:"steps_query"`
	Scenario   string `json:"scenario"`
}

func defaultConfig() Config {
	return Config{
		DBPath:     filepath.Join(plancheckDir(), "plancheck.db"),
		LogLevel:   "info",
		PoolSize:   4,
		StepsQuery: ".steps",
		Scenario:   "s1",
	}
}

func plancheckDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".plancheck"
	}
	return filepath.Join(home, ".plancheck")
}

func settingsPath() string {
	return filepath.Join(plancheckDir(), "settings.json")
}

func loadConfig() Config {
	return loadConfigFrom(settingsPath(), os.Getenv)
}

func loadConfigFrom(path string, getenv func(string) string) Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := getenv("PLANCHECK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("PLANCHECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("PLANCHECK_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := getenv("PLANCHECK_STEPS_QUERY"); v != "" {
		cfg.StepsQuery = v
	}
	if v := getenv("PLANCHECK_SCENARIO"); v != "" {
		cfg.Scenario = v
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	return cfg
}

// dsn turns a database path into a libSQL connection string.
func (c Config) dsn() string {
	if strings.HasPrefix(c.DBPath, "file:") || strings.Contains(c.DBPath, "://") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug, info, warn, error)", s)
	}
}
