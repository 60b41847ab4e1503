package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sweeper periodically removes expired entries from a Store.
//
// It never changes what Get returns; it only reclaims memory held by entries
// that Get already reports as absent.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSweeper creates a sweeper. An interval <= 0 makes Start a no-op.
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (w *Sweeper) Start() {
	if w.interval <= 0 {
		w.logger.Info("expiry sweeper disabled")
		return
	}
	w.startOnce.Do(func() {
		w.started.Store(true)
		w.logger.Info("expiry sweeper started", "interval", w.interval)
		go w.loop()
	})
}

// Stop stops the loop and waits for an in-flight sweep to finish, or for ctx
// to be done.
func (w *Sweeper) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	if !w.started.Load() {
		return nil
	}

	select {
	case <-w.doneCh:
		w.logger.Info("expiry sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Sweeper) loop() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := w.store.Sweep(); n > 0 {
				w.logger.Debug("swept expired keys", "removed", n)
			}
		case <-w.stopCh:
			return
		}
	}
}
