package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/tinykv/internal/cli/connection"
	"github.com/yndnr/tinykv/internal/cli/output"
	"github.com/yndnr/tinykv/internal/server/redisserver"
)

// ErrDataLoss is returned by bench when a value read back differs from the
// value written.
var ErrDataLoss = errors.New("data loss detected")

// ErrServerUnavailable is returned by bench when the circuit breaker opens.
var ErrServerUnavailable = errors.New("server unavailable")

// BenchResult summarises a bench run.
type BenchResult struct {
	Clients      int           `json:"clients" yaml:"clients"`
	Requests     int           `json:"requests" yaml:"requests"`
	Elapsed      time.Duration `json:"elapsed_ns" yaml:"elapsed_ns"`
	OpsPerSec    float64       `json:"ops_per_sec" yaml:"ops_per_sec"`
	Errors       int64         `json:"errors" yaml:"errors"`
	ErrorReplies int64         `json:"error_replies" yaml:"error_replies"`
	LostUpdates  int64         `json:"lost_updates" yaml:"lost_updates"`
	Corrupted    int64         `json:"corrupted" yaml:"corrupted"`

	connection.PoolStats `json:"pool" yaml:"pool" table:"-"`
}

// BenchCommand returns the bench command.
func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Run concurrent SET/GET pairs on disjoint keys and verify every read",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "clients", Aliases: []string{"c"}, Usage: "concurrent clients", Value: 50},
			&cli.IntFlag{Name: "requests", Aliases: []string{"n"}, Usage: "total SET/GET pairs", Value: 10000},
			&cli.IntFlag{Name: "pool-size", Usage: "pooled connections (0 means one per client)"},
			&cli.IntFlag{Name: "value-size", Usage: "value size in bytes", Value: 64},
			&cli.StringFlag{Name: "prefix", Usage: "key prefix", Value: "bench"},
			&cli.BoolFlag{Name: "progress", Usage: "show a progress bar on stderr"},
		},
		Action: benchAction,
	}
}

type benchOptions struct {
	Clients   int
	Requests  int
	PoolSize  int
	ValueSize int
	Prefix    string
	Timeout   time.Duration
	Addr      string
}

func benchAction(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	opts := benchOptions{
		Clients:   c.Int("clients"),
		Requests:  c.Int("requests"),
		PoolSize:  c.Int("pool-size"),
		ValueSize: c.Int("value-size"),
		Prefix:    c.String("prefix"),
		Timeout:   flags.Timeout,
		Addr:      flags.Addr,
	}
	if err := opts.validate(); err != nil {
		return err
	}

	formatter, err := output.NewFormatter(flags.Output)
	if err != nil {
		return err
	}

	var bar *output.ProgressBar
	if c.Bool("progress") {
		bar = output.NewProgressBar(c.App.ErrWriter, "bench", int64(opts.Requests))
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := runBench(ctx, opts, bar)
	if err != nil {
		return err
	}
	if bar != nil {
		bar.Finish()
	}

	if err := formatter.Format(c.App.Writer, result); err != nil {
		return err
	}
	if result.LostUpdates > 0 || result.Corrupted > 0 {
		return fmt.Errorf("%w: %d lost updates, %d corrupted values", ErrDataLoss, result.LostUpdates, result.Corrupted)
	}
	return nil
}

func (o *benchOptions) validate() error {
	switch {
	case o.Clients <= 0:
		return errors.New("--clients must be positive")
	case o.Requests <= 0:
		return errors.New("--requests must be positive")
	case o.PoolSize < 0:
		return errors.New("--pool-size must not be negative")
	case o.ValueSize <= 0 || o.ValueSize > redisserver.MaxBulkLen:
		return fmt.Errorf("--value-size must be between 1 and %d", redisserver.MaxBulkLen)
	}
	if o.PoolSize == 0 {
		o.PoolSize = o.Clients
	}
	return nil
}

// runBench splits the requests across the clients. Each client writes its
// own keys, so any mismatch on read back is a server fault.
func runBench(ctx context.Context, opts benchOptions, bar *output.ProgressBar) (*BenchResult, error) {
	pool, err := connection.NewPool(connection.PoolConfig{
		Addr:    opts.Addr,
		Size:    int32(opts.PoolSize),
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	var errs, errReplies, lost, corrupted atomic.Int64

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for client := 0; client < opts.Clients; client++ {
		client := client
		n :=opts.Requests / opts.Clients
		if client < opts.Requests%opts.Clients {
			n++
		}

		g.Go(func() error {
			for i := 0; i < n; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}

				key := opts.Prefix + ":" + strconv.Itoa(client) + ":" + strconv.Itoa(i)
				value := benchValue(client, i, opts.ValueSize)

				if ok := checkReply(ctx, pool, &errs, &errReplies, "SET", key, value); ok {
					reply, err := pool.Do(ctx, "GET", key)
					switch {
					case err != nil:
						errs.Add(1)
					case reply.Kind == connection.ReplyError:
						errReplies.Add(1)
					case reply.IsNil():
						lost.Add(1)
					case reply.Str != value:
						corrupted.Add(1)
					}
				}

				if bar != nil {
					bar.Increment(1)
				}
				if pool.BreakerState() == gobreaker.StateOpen {
					return fmt.Errorf("%w: circuit breaker open after %d transport errors", ErrServerUnavailable, errs.Load())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	return &BenchResult{
		Clients:      opts.Clients,
		Requests:     opts.Requests,
		Elapsed:      elapsed,
		OpsPerSec:    float64(2*opts.Requests) / elapsed.Seconds(),
		Errors:       errs.Load(),
		ErrorReplies: errReplies.Load(),
		LostUpdates:  lost.Load(),
		Corrupted:    corrupted.Load(),
		PoolStats:    pool.Stats(),
	}, nil
}

// checkReply runs one command and reports whether it succeeded.
func checkReply(ctx context.Context, pool *connection.Pool, errs, errReplies *atomic.Int64, args ...string) bool {
	reply, err := pool.Do(ctx, args...)
	if err != nil {
		errs.Add(1)
		return false
	}
	if reply.Kind == connection.ReplyError {
		errReplies.Add(1)
		return false
	}
	return true
}

// benchValue builds a value unique to (client, i) padded to size bytes.
func benchValue(client, i, size int) string {
	tag := strconv.Itoa(client) + "-" + strconv.Itoa(i) + "-"
	if len(tag) >= size {
		return tag[:size]
	}
	return tag + strings.Repeat("x", size-len(tag))
}
