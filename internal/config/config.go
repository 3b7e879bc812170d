package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/vango-dev/campusdesk/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "campusdesk.json"

	// EnvPrefix prefixes every environment variable.
	EnvPrefix = "CAMPUSDESK_"

	// DefaultPort is the default server port.
	DefaultPort = 8080

	// DefaultHost is the default server host.
	DefaultHost = "localhost"

	// DefaultShutdownTimeout matches the supervisor kill timeout.
	DefaultShutdownTimeout = "5s"
)

// Persistence backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

// Config represents the complete campusdesk.json configuration.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `json:"server" envPrefix:"SERVER_"`

	// Log contains logging configuration.
	Log LogConfig `json:"log" envPrefix:"LOG_"`

	// Toast contains notifier configuration.
	Toast ToastConfig `json:"toast" envPrefix:"TOAST_"`

	// Persist contains state persistence configuration.
	Persist PersistConfig `json:"persist" envPrefix:"PERSIST_"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `json:"metrics" envPrefix:"METRICS_"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `json:"tracing" envPrefix:"TRACING_"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `json:"host,omitempty" env:"HOST"`
	Port int    `json:"port,omitempty" env:"PORT"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "5s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" env:"SHUTDOWN_TIMEOUT"`

	// AllowedOrigins limits live-feed WebSocket origins. Empty allows
	// same-origin requests only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" env:"LEVEL"`

	// Format is text or json.
	Format string `json:"format,omitempty" env:"FORMAT"`
}

// ToastConfig contains notifier settings.
type ToastConfig struct {
	// DefaultDuration is the lifetime of toasts emitted without one.
	DefaultDuration string `json:"defaultDuration,omitempty" env:"DEFAULT_DURATION"`
}

// PersistConfig contains state persistence settings.
type PersistConfig struct {
	// Backend is one of memory, file, sqlite, s3.
	Backend string `json:"backend,omitempty" env:"BACKEND"`

	// Key names the snapshot in storage.
	Key string `json:"key,omitempty" env:"KEY"`

	// Dir is the snapshot directory of the file backend.
	Dir string `json:"dir,omitempty" env:"DIR"`

	// DSN is the database path of the sqlite backend.
	DSN string `json:"dsn,omitempty" env:"DSN"`

	// Bucket, Prefix, Region and Endpoint configure the s3 backend.
	Bucket   string `json:"bucket,omitempty" env:"BUCKET"`
	Prefix   string `json:"prefix,omitempty" env:"PREFIX"`
	Region   string `json:"region,omitempty" env:"REGION"`
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`

	AccessKeyID     string `json:"-" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" env:"SECRET_ACCESS_KEY"`

	// Throttle delays writes after a change (e.g., "1s"). "0s" writes on
	// every dispatch.
	Throttle string `json:"throttle,omitempty" env:"THROTTLE"`

	// Whitelist limits the persisted slices. Empty persists all.
	Whitelist []string `json:"whitelist,omitempty" env:"WHITELIST" envSeparator:","`

	// Version is stamped into snapshots.
	Version int `json:"version,omitempty" env:"VERSION"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" env:"ENABLED"`
	Namespace string `json:"namespace,omitempty" env:"NAMESPACE"`
}

// TracingConfig contains OpenTelemetry settings. Tracing is off while
// Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `json:"endpoint,omitempty" env:"ENDPOINT"`
	ServiceName string `json:"serviceName,omitempty" env:"SERVICE_NAME"`
	TracerName  string `json:"tracerName,omitempty" env:"TRACER_NAME"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Toast: ToastConfig{
			DefaultDuration: "4s",
		},
		Persist: PersistConfig{
			Backend:  BackendMemory,
			Key:      "root",
			Throttle: "1s",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "campusdesk",
		},
		Tracing: TracingConfig{
			ServiceName: "campusdesk",
			TracerName:  "campusdesk",
		},
	}
}

// Load reads campusdesk.json from dir, if present, and applies the
// environment. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)

	cfg := New()
	if _, err := os.Stat(path); err == nil {
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from the specified file path. The
// environment is not applied.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// ApplyEnv overlays CAMPUSDESK_* environment variables. Unset variables
// leave fields untouched.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.New("E121").Wrap(err)
	}
	c.applyDefaults()
	return nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Toast.DefaultDuration == "" {
		c.Toast.DefaultDuration = d.Toast.DefaultDuration
	}
	if c.Persist.Backend == "" {
		c.Persist.Backend = d.Persist.Backend
	}
	if c.Persist.Key == "" {
		c.Persist.Key = d.Persist.Key
	}
	if c.Persist.Throttle == "" {
		c.Persist.Throttle = d.Persist.Throttle
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = d.Tracing.TracerName
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E122").
			WithDetail("Port must be between 0 and 65535, got " + strconv.Itoa(c.Server.Port))
	}

	for name, value := range map[string]string{
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"toast.defaultDuration":  c.Toast.DefaultDuration,
		"persist.throttle":       c.Persist.Throttle,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.New("E120").
				WithDetail(name + " is not a duration: " + value).
				WithSuggestion(`Use Go duration syntax such as "500ms" or "5s"`)
		}
		if d < 0 {
			return errors.New("E120").WithDetail(name + " must not be negative")
		}
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.New("E120").
			WithDetail("log.format must be text or json, got " + c.Log.Format)
	}

	return c.validatePersist()
}

func (c *Config) validatePersist() error {
	p := c.Persist
	missing := func(field string) error {
		return errors.New("E124").
			WithDetail("persist." + field + " is required for the " + p.Backend + " backend").
			WithSuggestion("Set " + EnvPrefix + "PERSIST_" + strings.ToUpper(field) + " or add it to " + ConfigFileName)
	}
	switch p.Backend {
	case BackendMemory:
	case BackendFile:
		if p.Dir == "" {
			return missing("dir")
		}
	case BackendSQLite:
		if p.DSN == "" {
			return missing("dsn")
		}
	case BackendS3:
		if p.Bucket == "" {
			return missing("bucket")
		}
		if p.Region == "" {
			return missing("region")
		}
	default:
		return errors.New("E123").WithDetail("Got " + strconv.Quote(p.Backend))
	}
	return nil
}

// Address returns the host:port listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// ShutdownTimeout returns the parsed server shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

// ToastDuration returns the parsed default toast duration.
func (c *Config) ToastDuration() time.Duration {
	return parseDuration(c.Toast.DefaultDuration, 4*time.Second)
}

// PersistThrottle returns the parsed persistence throttle.
func (c *Config) PersistThrottle() time.Duration {
	return parseDuration(c.Persist.Throttle, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.New("E120").
			WithDetail("log.level must be debug, info, warn or error, got " + c.Log.Level)
	}
	return level, nil
}
