package config

import "time"

// ServerConfig is the root configuration for tinykv-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	Redis   RedisConfig   `koanf:"redis"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// RedisConfig configures the RESP listener.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// MaxBufferLen caps the unparsed bytes held per connection.
	MaxBufferLen int `koanf:"max_buffer_len"`

	// RateLimit is in commands per second per client IP. 0 disables it.
	RateLimit int `koanf:"rate_limit"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// StorageSection configures the in-memory store.
type StorageSection struct {
	// SweepInterval is how often expired entries are removed. 0 disables
	// sweeping and expired entries stay stored until overwritten.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
