package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tinykv/internal/infra/buildinfo"
	"github.com/yndnr/tinykv/internal/infra/confloader"
	"github.com/yndnr/tinykv/internal/infra/shutdown"
	"github.com/yndnr/tinykv/internal/server/config"
	"github.com/yndnr/tinykv/internal/server/redisserver"
	"github.com/yndnr/tinykv/internal/storage/memory"
	"github.com/yndnr/tinykv/internal/telemetry/logger"
	"github.com/yndnr/tinykv/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app := &cli.App{
		Name:    "tinykv-server",
		Usage:   "in-memory key-value server speaking RESP",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"TINYKV_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, c.String("config"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component and blocks until a shutdown signal arrives or
// ctx is done.
func run(ctx context.Context, configFile string) error {
	loader := newLoader(configFile)

	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting tinykv-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", configFile)

	store := memory.New()
	sweeper := memory.NewSweeper(store, cfg.Storage.SweepInterval, log.Slog().With("component", "sweeper"))

	registry := metric.NewRegistry()
	srv := redisserver.New(redisConfig(cfg), store, registry, log.Slog().With("component", "redis"))
	registry.MustRegister(metric.NewCollector(store, srv, time.Now()))

	// Hooks run in reverse order of registration.
	shutdownHandler := shutdown.NewHandler(shutdownTimeout, log.Slog())

	sweeper.Start()
	shutdownHandler.OnShutdown("sweeper", sweeper.Stop)

	if err := srv.Start(ctx); err != nil {
		_ = shutdownHandler.Shutdown()
		return fmt.Errorf("start redis server: %w", err)
	}
	shutdownHandler.OnShutdown("redis", srv.Shutdown)

	if cfg.Server.Metrics.Enabled {
		ms, err := metric.Listen(cfg.Server.Metrics.Addr, registry, log.Slog().With("component", "metrics"))
		if err != nil {
			_ = shutdownHandler.Shutdown()
			return fmt.Errorf("start metrics server: %w", err)
		}
		shutdownHandler.OnShutdown("metrics", ms.Shutdown)
	}

	if configFile != "" {
		watcher, err := startWatcher(loader, log)
		if err != nil {
			log.Warn("configuration watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

func newLoader(configFile string) *confloader.Loader {
	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	return confloader.NewLoader(opts...)
}

// loadConfig layers the file and environment over the defaults and verifies
// the result.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()

	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}

	logger.SetDefault(log)
	return log, nil
}

func redisConfig(cfg *config.ServerConfig) *redisserver.Config {
	r := cfg.Server.Redis
	return &redisserver.Config{
		Address:      r.Addr,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
		IdleTimeout:  r.IdleTimeout,
		MaxBufferLen: r.MaxBufferLen,
		RateLimit:    r.RateLimit,
	}
}

// startWatcher reloads the configuration file when it changes. Only the log
// level is applied at runtime; other settings need a restart.
func startWatcher(loader *confloader.Loader, log logger.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Slog().With("component", "confloader")))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(loader.FilePath()); err != nil {
		_ = watcher.Stop()
		return nil, err
	}

	prev := loader.All()
	watcher.OnChange(func(path string) {
		next := config.Default()
		if err := loader.Reload(next); err != nil {
			log.Warn("configuration reload failed", "file", path, "error", err)
			return
		}
		if err := config.Verify(next); err != nil {
			log.Warn("configuration reload rejected", "file", path, "error", err)
			return
		}
		if err := logger.SetLevel(next.Log.Level); err != nil {
			log.Warn("log level not applied", "level", next.Log.Level, "error", err)
			return
		}
		for _, key := range changedKeys(prev, loader.All()) {
			if key != "log.level" {
				log.Warn("setting changed, restart to apply", "key", key)
			}
		}
		prev = loader.All()
		log.Info("configuration reloaded", "file", path, "log_level", next.Log.Level)
	})
	watcher.StartAsync()

	return watcher, nil
}

// changedKeys returns the sorted dotted keys whose values differ between two
// flattened configurations.
func changedKeys(prev, next map[string]any) []string {
	var keys []string
	for k, v := range next {
		if old, ok := prev[k]; !ok || fmt.Sprint(old) != fmt.Sprint(v) {
			keys = append(keys, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
