package config

import "time"

// Default configuration values.
const (
	DefaultRedisAddr    = "127.0.0.1:6379"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 5 * time.Minute
	DefaultMaxBufferLen = 1 << 20

	DefaultMetricsAddr = "127.0.0.1:9121"

	DefaultSweepInterval = time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Redis: RedisConfig{
				Addr:         DefaultRedisAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				IdleTimeout:  DefaultIdleTimeout,
				MaxBufferLen: DefaultMaxBufferLen,
			},
			Metrics: MetricsConfig{
				Enabled: false,
				Addr:    DefaultMetricsAddr,
			},
		},
		Storage: StorageSection{
			SweepInterval: DefaultSweepInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
