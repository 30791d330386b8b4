package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the CallScope server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir       string
	HTTPPort      int
	CDRDriver     string // "sqlite" (embedded) or "postgres" (external table)
	CDRDSN        string // connection string for the postgres driver
	CDRTable      string // CDR table name for the postgres driver
	RecordingsDir string // root of the audio store; defaults under DataDir
	RulesFile     string // YAML classification rules; built-ins when empty
	RetentionDays int    // recording retention in days; 0 disables cleanup
	CORSOrigins   string
	LogLevel      string
	LogFormat     string // log output format: "text" or "json"
}

// defaults
const (
	defaultDataDir   = "./data"
	defaultHTTPPort  = 8080
	defaultCDRDriver = "sqlite"
	defaultCDRTable  = "cdr"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// envPrefix is the prefix for all CallScope environment variables.
const envPrefix = "CALLSCOPE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callscope", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the embedded database and file storage")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.CDRDriver, "cdr-driver", defaultCDRDriver, "CDR source backend (sqlite, postgres)")
	fs.StringVar(&cfg.CDRDSN, "cdr-dsn", "", "PostgreSQL connection string for the postgres CDR source")
	fs.StringVar(&cfg.CDRTable, "cdr-table", defaultCDRTable, "CDR table name for the postgres CDR source")
	fs.StringVar(&cfg.RecordingsDir, "recordings-dir", "", "root directory of call recordings (default <data-dir>/recordings)")
	fs.StringVar(&cfg.RulesFile, "rules-file", "", "YAML file with operator patterns, queue numbers and the orphan link window (built-in defaults if empty)")
	fs.IntVar(&cfg.RetentionDays, "retention-days", 0, "delete recordings older than this many days (0 disables)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	envMap := map[string]string{
		"data-dir":       envPrefix + "DATA_DIR",
		"http-port":      envPrefix + "HTTP_PORT",
		"cdr-driver":     envPrefix + "CDR_DRIVER",
		"cdr-dsn":        envPrefix + "CDR_DSN",
		"cdr-table":      envPrefix + "CDR_TABLE",
		"recordings-dir": envPrefix + "RECORDINGS_DIR",
		"rules-file":     envPrefix + "RULES_FILE",
		"retention-days": envPrefix + "RETENTION_DAYS",
		"cors-origins":   envPrefix + "CORS_ORIGINS",
		"log-level":      envPrefix + "LOG_LEVEL",
		"log-format":     envPrefix + "LOG_FORMAT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "cdr-driver":
			cfg.CDRDriver = val
		case "cdr-dsn":
			cfg.CDRDSN = val
		case "cdr-table":
			cfg.CDRTable = val
		case "recordings-dir":
			cfg.RecordingsDir = val
		case "rules-file":
			cfg.RulesFile = val
		case "retention-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RetentionDays = v
			}
		case "cors-origins":
			cfg.CORSOrigins = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	c.CDRDriver = strings.ToLower(c.CDRDriver)
	switch c.CDRDriver {
	case "sqlite":
	case "postgres":
		if c.CDRDSN == "" {
			return fmt.Errorf("cdr-dsn is required with the postgres cdr-driver")
		}
	default:
		return fmt.Errorf("cdr-driver must be sqlite or postgres, got %q", c.CDRDriver)
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("retention-days must not be negative, got %d", c.RetentionDays)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	return nil
}

// RecordingsRoot returns the configured recordings directory, defaulting
// to the recordings subdirectory of the data dir.
func (c *Config) RecordingsRoot() string {
	if c.RecordingsDir != "" {
		return c.RecordingsDir
	}
	return filepath.Join(c.DataDir, "recordings")
}

// SlogHandler returns a slog.Handler configured with the appropriate
// format (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
