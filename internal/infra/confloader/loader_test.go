package confloader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		Redis struct {
			Addr        string        `koanf:"addr"`
			RateLimit   int           `koanf:"rate_limit"`
			IdleTimeout time.Duration `koanf:"idle_timeout"`
		} `koanf:"redis"`
		Metrics struct {
			Enabled bool `koanf:"enabled"`
		} `koanf:"metrics"`
	} `koanf:"server"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tinykv.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
	if l.FilePath() != "" {
		t.Errorf("FilePath() = %q, want empty", l.FilePath())
	}

	l = NewLoader(WithEnvPrefix("TEST_"), WithConfigFile("/etc/tinykv.yaml"))
	if l.envPrefix != "TEST_" {
		t.Errorf("envPrefix = %q, want TEST_", l.envPrefix)
	}
	if l.FilePath() != "/etc/tinykv.yaml" {
		t.Errorf("FilePath() = %q, want /etc/tinykv.yaml", l.FilePath())
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  redis:
    addr: "0.0.0.0:7000"
    rate_limit: 50
    idle_timeout: 90s
  metrics:
    enabled: true
log:
  level: debug
`)

	var cfg testConfig
	if err := NewLoader(WithConfigFile(path), WithEnvPrefix("TINYKV_TEST_NONE_")).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Redis.Addr != "0.0.0.0:7000" {
		t.Errorf("Addr = %q, want 0.0.0.0:7000", cfg.Server.Redis.Addr)
	}
	if cfg.Server.Redis.RateLimit != 50 {
		t.Errorf("RateLimit = %d, want 50", cfg.Server.Redis.RateLimit)
	}
	if cfg.Server.Redis.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v, want 90s", cfg.Server.Redis.IdleTimeout)
	}
	if !cfg.Server.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	if err := NewLoader().LoadFile("/nonexistent/tinykv.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoader_LoadFile_Invalid(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")

	var cfg testConfig
	err := NewLoader(WithConfigFile(path)).Load(&cfg)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "load config file") {
		t.Errorf("error = %q, want it to mention the config file", err)
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("TINYKV_SERVER__REDIS__ADDR", "127.0.0.1:7001")
	t.Setenv("TINYKV_SERVER__REDIS__RATE_LIMIT", "25")
	t.Setenv("TINYKV_LOG__LEVEL", "warn")

	var cfg testConfig
	if err := NewLoader().Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Redis.Addr != "127.0.0.1:7001" {
		t.Errorf("Addr = %q, want 127.0.0.1:7001", cfg.Server.Redis.Addr)
	}
	if cfg.Server.Redis.RateLimit != 25 {
		t.Errorf("RateLimit = %d, want 25", cfg.Server.Redis.RateLimit)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoader_LoadEnv_CustomPrefix(t *testing.T) {
	t.Setenv("KVTEST_LOG__LEVEL", "error")

	l := NewLoader(WithEnvPrefix("KVTEST_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	err := l.LoadMap(map[string]any{
		"server.redis.addr": "127.0.0.1:7002",
		"log": map[string]any{
			"level": "debug",
		},
	})
	if err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	all := l.All()
	if all["server.redis.addr"] != "127.0.0.1:7002" {
		t.Errorf("server.redis.addr = %v, want 127.0.0.1:7002", all["server.redis.addr"])
	}
	if all["log.level"] != "debug" {
		t.Errorf("log.level = %v, want debug", all["log.level"])
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  redis:
    addr: "file:1"
    rate_limit: 10
log:
  level: info
`)
	t.Setenv("TINYKV_SERVER__REDIS__ADDR", "env:2")
	t.Setenv("TINYKV_LOG__LEVEL", "warn")

	var cfg testConfig
	cfg.Server.Redis.IdleTimeout = time.Minute // default, absent everywhere

	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"log.level": "error"}),
	)
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Redis.Addr != "env:2" {
		t.Errorf("Addr = %q, env should override file", cfg.Server.Redis.Addr)
	}
	if cfg.Server.Redis.RateLimit != 10 {
		t.Errorf("RateLimit = %d, file value should be kept", cfg.Server.Redis.RateLimit)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, override should beat env", cfg.Log.Level)
	}
	if cfg.Server.Redis.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %v, default should be kept", cfg.Server.Redis.IdleTimeout)
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\nserver:\n  redis:\n    rate_limit: 5\n")
	l := NewLoader(WithConfigFile(path), WithEnvPrefix("TINYKV_TEST_NONE_"))

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("Log.Level = %q, want info", cfg.Log.Level)
	}

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var next testConfig
	if err := l.Reload(&next); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if next.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", next.Log.Level)
	}
	if _, ok := l.All()["server.redis.rate_limit"]; ok {
		t.Error("Reload kept a key that is no longer in the file")
	}
}

func TestMapProvider_ReadBytes(t *testing.T) {
	_, err := mapProvider{}.ReadBytes()
	if !errors.Is(err, ErrReadBytesNotSupported) {
		t.Errorf("ReadBytes() error = %v, want ErrReadBytesNotSupported", err)
	}
}
