package redisserver

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/tinykv/pkg/cmap"
)

const (
	// limiterIdleTTL is how long an IP may stay silent before its bucket is
	// dropped. A bucket refills completely in one second, so nothing is lost.
	limiterIdleTTL = time.Minute

	// pruneEvery is the number of allow calls between prune passes.
	pruneEvery = 4096
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	limiters *cmap.Map[*ipLimiter]
	limit    rate.Limit
	burst    int
	calls    atomic.Uint64
	now      func() time.Time
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	return &rateLimiter{
		limiters: cmap.New[*ipLimiter](),
		limit:    rate.Limit(requestsPerSecond),
		burst:    requestsPerSecond,
		now:      time.Now,
	}
}

// allow reports whether a command from ip may run now.
func (rl *rateLimiter) allow(ip string) bool {
	now := rl.now()
	if rl.calls.Add(1)%pruneEvery == 0 {
		rl.prune(now)
	}

	l, _ := rl.limiters.GetOrCreate(ip, func() *ipLimiter {
		return &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	})
	l.lastSeen.Store(now.UnixNano())

	return l.limiter.AllowN(now, 1)
}

// prune drops buckets idle for longer than limiterIdleTTL.
func (rl *rateLimiter) prune(now time.Time) int {
	cutoff := now.Add(-limiterIdleTTL).UnixNano()
	return rl.limiters.DeleteIf(func(_ string, l *ipLimiter) bool {
		return l.lastSeen.Load() < cutoff
	})
}
