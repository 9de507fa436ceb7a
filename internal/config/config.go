// Package config loads the server configuration.
//
// Values are layered, later sources overriding earlier ones:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file (--config or STUDYGROUP_CONFIG)
//  3. environment variables, including those read from a .env file
//     (--env-file, default ".env"); real environment variables win over
//     the file
//  4. command-line flags that were set explicitly
//
// The result is validated before it is returned.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Environment names.
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

// devJWTSecret is the default signing secret. It is rejected in
// production.
const devJWTSecret = "studygroup-development-secret"

// Config is the server configuration.
type Config struct {
	Environment string `yaml:"environment" validate:"oneof=development staging production"`
	Port        int    `yaml:"port" validate:"min=1,max=65535"`
	DBPath      string `yaml:"db_path" validate:"required"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	JWTSecret   string `yaml:"jwt_secret" validate:"required,min=16"`
	SentryDSN   string `yaml:"sentry_dsn" validate:"omitempty,url"`

	Blob    BlobConfig    `yaml:"blob"`
	Redis   RedisConfig   `yaml:"redis"`
	Session SessionConfig `yaml:"session"`

	// EventTimezone is the IANA zone event dates and times are read in.
	// Empty or "Local" means the server's local zone.
	EventTimezone string `yaml:"event_timezone"`

	// OrphanSweepInterval is how often message collections of deleted
	// groups are collected. Zero disables the collector.
	OrphanSweepInterval time.Duration `yaml:"orphan_sweep_interval" validate:"min=0"`
}

// BlobConfig configures file storage for uploads.
type BlobConfig struct {
	Dir     string `yaml:"dir" validate:"required"`
	BaseURL string `yaml:"base_url" validate:"required,url"`
}

// RedisConfig configures cross-instance change fan-out. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
	Channel  string `yaml:"channel"`
}

// SessionConfig holds the activity monitor timings.
type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	WarningWindow time.Duration `yaml:"warning_window" validate:"gt=0,ltfield=Timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Port:        8080,
		DBPath:      "./data/studygroup.db",
		LogLevel:    "info",
		JWTSecret:   devJWTSecret,
		Blob: BlobConfig{
			Dir:     "./data/blobs",
			BaseURL: "http://localhost:8080/blobs",
		},
		Session: SessionConfig{
			Timeout:       30 * time.Minute,
			WarningWindow: 60 * time.Second,
		},
		EventTimezone:       "Local",
		OrphanSweepInterval: 10 * time.Minute,
	}
}

// Load reads the configuration for the process from args (without the
// program name) and the process environment.
func Load(args []string) (*Config, error) {
	return Parse(args, os.LookupEnv)
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Parse builds a Config from args and lookup.
func Parse(args []string, lookup LookupFunc) (*Config, error) {
	flags := pflag.NewFlagSet("studygroup", pflag.ContinueOnError)
	defaults := Default()

	configPath := flags.String("config", "", "path to a YAML config file")
	envFile := flags.String("env-file", ".env", "path to a .env file")
	port := flags.Int("port", defaults.Port, "HTTP listen port")
	dbPath := flags.String("db-path", defaults.DBPath, "SQLite database path")
	logLevel := flags.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	blobDir := flags.String("blob-dir", defaults.Blob.Dir, "directory for uploaded files")
	blobURL := flags.String("blob-base-url", defaults.Blob.BaseURL, "public URL uploaded files are served under")
	redisAddr := flags.String("redis-addr", "", "Redis address for change fan-out (host:port)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	env, err := withEnvFile(lookup, *envFile, flags.Changed("env-file"))
	if err != nil {
		return nil, err
	}

	cfg := Default()
	path := *configPath
	if path == "" {
		path, _ = env("STUDYGROUP_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if flags.Changed("port") {
		cfg.Port = *port
	}
	if flags.Changed("db-path") {
		cfg.DBPath = *dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("blob-dir") {
		cfg.Blob.Dir = *blobDir
	}
	if flags.Changed("blob-base-url") {
		cfg.Blob.BaseURL = *blobURL
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr = *redisAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withEnvFile layers the variables of a .env file under lookup. A missing
// file is an error only if it was requested explicitly.
func withEnvFile(lookup LookupFunc, path string, explicit bool) (LookupFunc, error) {
	if path == "" {
		return lookup, nil
	}
	fileEnv, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return lookup, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	str("ENVIRONMENT", &c.Environment)
	str("DB_PATH", &c.DBPath)
	str("LOG_LEVEL", &c.LogLevel)
	str("JWT_SECRET", &c.JWTSecret)
	str("SENTRY_DSN", &c.SentryDSN)
	str("BLOB_DIR", &c.Blob.Dir)
	str("BLOB_BASE_URL", &c.Blob.BaseURL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("REDIS_CHANNEL", &c.Redis.Channel)
	str("EVENT_TIMEZONE", &c.EventTimezone)

	ints := map[string]*int{
		"PORT":     &c.Port,
		"REDIS_DB": &c.Redis.DB,
	}
	for key, dst := range ints {
		v, ok := env(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"SESSION_TIMEOUT":        &c.Session.Timeout,
		"SESSION_WARNING_WINDOW": &c.Session.WarningWindow,
		"ORPHAN_SWEEP_INTERVAL":  &c.OrphanSweepInterval,
	}
	for key, dst := range durations {
		v, ok := env(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

// Validate checks field constraints and the production requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: event_timezone: %w", err)
	}
	if c.Environment == Production && c.JWTSecret == devJWTSecret {
		return errors.New("invalid config: jwt_secret must be set in production")
	}
	return nil
}

// Location returns the event time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.EventTimezone == "" || c.EventTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.EventTimezone)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
