package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	r := cfg.Server.Redis
	if r.Addr != DefaultRedisAddr {
		t.Errorf("Redis.Addr = %q, want %q", r.Addr, DefaultRedisAddr)
	}
	if r.ReadTimeout != DefaultReadTimeout || r.WriteTimeout != DefaultWriteTimeout || r.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("Redis timeouts = %v/%v/%v", r.ReadTimeout, r.WriteTimeout, r.IdleTimeout)
	}
	if r.MaxBufferLen != DefaultMaxBufferLen {
		t.Errorf("Redis.MaxBufferLen = %d, want %d", r.MaxBufferLen, DefaultMaxBufferLen)
	}
	if r.RateLimit != 0 {
		t.Errorf("Redis.RateLimit = %d, want 0", r.RateLimit)
	}

	if cfg.Server.Metrics.Enabled {
		t.Error("metrics should be disabled by default")
	}
	if cfg.Server.Metrics.Addr != DefaultMetricsAddr {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Server.Metrics.Addr, DefaultMetricsAddr)
	}

	if cfg.Storage.SweepInterval != DefaultSweepInterval {
		t.Errorf("Storage.SweepInterval = %v, want %v", cfg.Storage.SweepInterval, DefaultSweepInterval)
	}

	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) error = %v", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*ServerConfig) {},
		},
		{
			name:   "sweeper disabled",
			mutate: func(c *ServerConfig) { c.Storage.SweepInterval = 0 },
		},
		{
			name: "metrics enabled",
			mutate: func(c *ServerConfig) {
				c.Server.Metrics.Enabled = true
			},
		},
		{
			name:    "missing redis addr",
			mutate:  func(c *ServerConfig) { c.Server.Redis.Addr = "" },
			wantErr: "server.redis.addr is required",
		},
		{
			name:    "redis addr without port",
			mutate:  func(c *ServerConfig) { c.Server.Redis.Addr = "localhost" },
			wantErr: "server.redis.addr",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *ServerConfig) { c.Server.Redis.IdleTimeout = -time.Second },
			wantErr: "timeouts must not be negative",
		},
		{
			name:    "tiny buffer",
			mutate:  func(c *ServerConfig) { c.Server.Redis.MaxBufferLen = 8 },
			wantErr: "max_buffer_len",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *ServerConfig) { c.Server.Redis.RateLimit = -1 },
			wantErr: "rate_limit",
		},
		{
			name: "metrics port conflict",
			mutate: func(c *ServerConfig) {
				c.Server.Metrics.Enabled = true
				c.Server.Metrics.Addr = c.Server.Redis.Addr
			},
			wantErr: "conflicts",
		},
		{
			name: "bad metrics addr ignored when disabled",
			mutate: func(c *ServerConfig) {
				c.Server.Metrics.Addr = "nope"
			},
		},
		{
			name:    "negative sweep interval",
			mutate:  func(c *ServerConfig) { c.Storage.SweepInterval = -time.Second },
			wantErr: "storage.sweep_interval",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *ServerConfig) { c.Log.Level = "chatty" },
			wantErr: "log.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *ServerConfig) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Verify(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Verify() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.Redis.Addr = ""
	cfg.Storage.SweepInterval = -1
	cfg.Log.Level = "chatty"

	err := Verify(cfg)
	if err == nil {
		t.Fatal("Verify() = nil, want error")
	}
	for _, want := range []string{"server.redis.addr", "storage.sweep_interval", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Verify() = %q, missing %q", err, want)
		}
	}
}
