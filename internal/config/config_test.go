package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/campusdesk/internal/errors"
	"github.com/vango-dev/campusdesk/pkg/persist"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != DefaultHost {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, DefaultHost)
	}
	if cfg.ShutdownTimeout() != 5*time.Second {
		t.Errorf("ShutdownTimeout() = %v", cfg.ShutdownTimeout())
	}
	if cfg.ToastDuration() != 4000*time.Millisecond {
		t.Errorf("ToastDuration() = %v", cfg.ToastDuration())
	}
	if cfg.Persist.Backend != BackendMemory {
		t.Errorf("Persist.Backend = %q", cfg.Persist.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty", cfg.Path())
	}
	if cfg.Address() != "localhost:8080" {
		t.Errorf("Address() = %q", cfg.Address())
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configJSON := `{
  "server": {"host": "0.0.0.0", "port": 9000},
  "log": {"level": "debug", "format": "json"},
  "persist": {"backend": "file", "dir": "/var/lib/campusdesk", "whitelist": ["auth"]},
  "metrics": {"enabled": false}
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Address() != "0.0.0.0:9000" {
		t.Errorf("Address() = %q", cfg.Address())
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Persist.Backend != BackendFile || cfg.Persist.Dir != "/var/lib/campusdesk" {
		t.Errorf("Persist = %+v", cfg.Persist)
	}
	if cfg.Persist.Key != "root" || cfg.Persist.Throttle != "1s" {
		t.Errorf("defaults not applied: %+v", cfg.Persist)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	if cfg.Path() != filepath.Join(tmpDir, ConfigFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte("{invalid"), 0644)

	_, err := Load(tmpDir)
	if !errors.HasCode(err, "E120") {
		t.Fatalf("error = %v, want E120", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.HasCode(err, "E120") {
		t.Fatalf("error = %v, want E120", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CAMPUSDESK_SERVER_PORT", "7070")
	t.Setenv("CAMPUSDESK_LOG_LEVEL", "warn")
	t.Setenv("CAMPUSDESK_PERSIST_BACKEND", "s3")
	t.Setenv("CAMPUSDESK_PERSIST_BUCKET", "campus-state")
	t.Setenv("CAMPUSDESK_PERSIST_REGION", "eu-west-1")
	t.Setenv("CAMPUSDESK_PERSIST_ACCESS_KEY_ID", "AKID")
	t.Setenv("CAMPUSDESK_PERSIST_WHITELIST", "auth,students")
	t.Setenv("CAMPUSDESK_METRICS_ENABLED", "false")
	t.Setenv("CAMPUSDESK_TRACING_ENDPOINT", "http://collector:4318")

	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(`{"server":{"port":9000,"host":"0.0.0.0"}}`), 0644)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env did not override file port: %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unset env cleared file host: %q", cfg.Server.Host)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Persist.Backend != BackendS3 || cfg.Persist.Bucket != "campus-state" || cfg.Persist.AccessKeyID != "AKID" {
		t.Errorf("Persist = %+v", cfg.Persist)
	}
	if strings.Join(cfg.Persist.Whitelist, "|") != "auth|students" {
		t.Errorf("Whitelist = %v", cfg.Persist.Whitelist)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	if cfg.Tracing.Endpoint != "http://collector:4318" {
		t.Errorf("Tracing.Endpoint = %q", cfg.Tracing.Endpoint)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestApplyEnv_ParseError(t *testing.T) {
	t.Setenv("CAMPUSDESK_SERVER_PORT", "not-a-port")

	_, err := Load(t.TempDir())
	if !errors.HasCode(err, "E121") {
		t.Fatalf("error = %v, want E121", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		code   string
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "E122"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "E122"},
		{"bad shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = "soon" }, "E120"},
		{"negative throttle", func(c *Config) { c.Persist.Throttle = "-1s" }, "E120"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "E120"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "E120"},
		{"unknown backend", func(c *Config) { c.Persist.Backend = "redis" }, "E123"},
		{"file without dir", func(c *Config) { c.Persist.Backend = BackendFile }, "E124"},
		{"sqlite without dsn", func(c *Config) { c.Persist.Backend = BackendSQLite }, "E124"},
		{"s3 without bucket", func(c *Config) { c.Persist.Backend = BackendS3; c.Persist.Region = "us-east-1" }, "E124"},
		{"s3 without region", func(c *Config) { c.Persist.Backend = BackendS3; c.Persist.Bucket = "b" }, "E124"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("Validate() = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestSaveTo(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := New()
	cfg.Server.Port = 9999
	cfg.Persist.SecretAccessKey = "shh"

	path := filepath.Join(tmpDir, ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "shh") {
		t.Error("secret written to config file")
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9999 {
		t.Errorf("Server.Port = %d", loaded.Server.Port)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := New()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("json output = %s", out)
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name   string
		modify func(*Config)
		check  func(t *testing.T, st persist.Storage)
	}{
		{"memory", func(*Config) {}, func(t *testing.T, st persist.Storage) {
			if _, ok := st.(*persist.MemoryStorage); !ok {
				t.Errorf("got %T", st)
			}
		}},
		{"file", func(c *Config) { c.Persist.Backend = BackendFile; c.Persist.Dir = dir }, func(t *testing.T, st persist.Storage) {
			fs, ok := st.(*persist.FileStorage)
			if !ok || fs.Dir() != dir {
				t.Errorf("got %T", st)
			}
		}},
		{"sqlite", func(c *Config) {
			c.Persist.Backend = BackendSQLite
			c.Persist.DSN = filepath.Join(dir, "state.db")
		}, func(t *testing.T, st persist.Storage) {
			if _, ok := st.(*persist.SQLStorage); !ok {
				t.Errorf("got %T", st)
			}
			if err := st.Save(ctx, "root", []byte(`{}`)); err != nil {
				t.Errorf("Save() = %v", err)
			}
		}},
		{"s3", func(c *Config) {
			c.Persist.Backend = BackendS3
			c.Persist.Bucket = "b"
			c.Persist.Region = "us-east-1"
			c.Persist.Endpoint = "http://localhost:9000"
		}, func(t *testing.T, st persist.Storage) {
			if _, ok := st.(*persist.S3Storage); !ok {
				t.Errorf("got %T", st)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			st, err := cfg.OpenStorage(ctx)
			if err != nil {
				t.Fatal(err)
			}
			defer st.Close()
			tt.check(t, st)
		})
	}

	cfg := New()
	cfg.Persist.Backend = "tape"
	if _, err := cfg.OpenStorage(ctx); !errors.HasCode(err, "E123") {
		t.Errorf("unknown backend error = %v", err)
	}
}

func TestPersistorConfig(t *testing.T) {
	cfg := New()
	cfg.Persist.Throttle = "0s"
	cfg.Persist.Whitelist = []string{"auth"}
	cfg.Persist.Version = 3

	pc := cfg.PersistorConfig()
	if pc.Throttle != 0 || pc.Key != "root" || pc.Version != 3 || len(pc.Whitelist) != 1 {
		t.Errorf("PersistorConfig() = %+v", pc)
	}
}
