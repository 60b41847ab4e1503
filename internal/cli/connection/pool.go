package connection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/sony/gobreaker/v2"
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Addr    string
	Size    int32
	Timeout time.Duration

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration

	Logger *slog.Logger
}

// Pool shares connections to one server between goroutines. Requests go
// through a circuit breaker that opens after repeated transport failures.
type Pool struct {
	pool    *puddle.Pool[*Client]
	breaker *gobreaker.CircuitBreaker[Reply]

	created   atomic.Int64
	destroyed atomic.Int64
}

// PoolStats is a snapshot of pool and breaker counters.
type PoolStats struct {
	TotalConns     int32  `json:"total_conns" yaml:"total_conns"`
	IdleConns      int32  `json:"idle_conns" yaml:"idle_conns"`
	AcquireCount   int64  `json:"acquire_count" yaml:"acquire_count"`
	CreatedConns   int64  `json:"created_conns" yaml:"created_conns"`
	DestroyedConns int64  `json:"destroyed_conns" yaml:"destroyed_conns"`
	BreakerState   string `json:"breaker_state" yaml:"breaker_state"`
}

// NewPool creates a pool. Connections are dialed lazily on first use.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{}

	pool, err := puddle.NewPool(&puddle.Config[*Client]{
		Constructor: func(ctx context.Context) (*Client, error) {
			c, err := Dial(ctx, cfg.Addr, cfg.Timeout)
			if err == nil {
				p.created.Add(1)
			}
			return c, err
		},
		Destructor: func(c *Client) {
			p.destroyed.Add(1)
			_ = c.Close()
		},
		MaxSize: cfg.Size,
	})
	if err != nil {
		return nil, err
	}
	p.pool = pool

	p.breaker = gobreaker.NewCircuitBreaker[Reply](gobreaker.Settings{
		Name:        cfg.Addr,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "server", name, "from", from.String(), "to", to.String())
		},
	})

	return p, nil
}

// Do runs one command on a pooled connection. A connection that fails at
// the transport level is destroyed instead of returned to the pool. Error
// replies from the server do not count as breaker failures.
func (p *Pool) Do(ctx context.Context, args ...string) (Reply, error) {
	return p.breaker.Execute(func() (Reply, error) {
		res, err := p.pool.Acquire(ctx)
		if err != nil {
			return Reply{}, err
		}

		reply, err := res.Value().Do(ctx, args...)
		if err != nil {
			res.Destroy()
			return Reply{}, err
		}
		res.Release()
		return reply, nil
	})
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()
	return PoolStats{
		TotalConns:     s.TotalResources(),
		IdleConns:      s.IdleResources(),
		AcquireCount:   s.AcquireCount(),
		CreatedConns:   p.created.Load(),
		DestroyedConns: p.destroyed.Load(),
		BreakerState:   p.breaker.State().String(),
	}
}

// BreakerState returns the current circuit breaker state.
func (p *Pool) BreakerState() gobreaker.State {
	return p.breaker.State()
}

// Close closes all connections. It blocks until acquired connections are
// released.
func (p *Pool) Close() {
	p.pool.Close()
}
