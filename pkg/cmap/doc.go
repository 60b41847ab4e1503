// Package cmap provides a string-keyed concurrent map split into shards,
// each guarded by its own RWMutex.
//
// Usage:
//
//	m := cmap.New[*rate.Limiter]()
//	l, _ := m.GetOrCreate(ip, func() *rate.Limiter { return rate.NewLimiter(10, 10) })
//	m.DeleteIf(func(ip string, l *rate.Limiter) bool { return idle(l) })
package cmap
