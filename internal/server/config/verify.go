package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/yndnr/tinykv/internal/telemetry/logger"
)

// minBufferLen keeps room for the largest command header.
const minBufferLen = 64

// Verify validates the configuration. All problems are reported together.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	if err := verifyAddr("server.redis.addr", cfg.Redis.Addr); err != nil {
		errs = append(errs, err)
	}
	if cfg.Redis.ReadTimeout < 0 || cfg.Redis.WriteTimeout < 0 || cfg.Redis.IdleTimeout < 0 {
		errs = append(errs, errors.New("server.redis timeouts must not be negative"))
	}
	if cfg.Redis.MaxBufferLen < minBufferLen {
		errs = append(errs, fmt.Errorf("server.redis.max_buffer_len must be at least %d", minBufferLen))
	}
	if cfg.Redis.RateLimit < 0 {
		errs = append(errs, errors.New("server.redis.rate_limit must not be negative"))
	}

	if cfg.Metrics.Enabled {
		if err := verifyAddr("server.metrics.addr", cfg.Metrics.Addr); err != nil {
			errs = append(errs, err)
		}
		if cfg.Metrics.Addr == cfg.Redis.Addr {
			errs = append(errs, errors.New("server.metrics.addr conflicts with server.redis.addr"))
		}
	}

	return errors.Join(errs...)
}

func verifyAddr(field, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.SweepInterval < 0 {
		return errors.New("storage.sweep_interval must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
}
