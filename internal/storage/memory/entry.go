package memory

import "time"

// Entry is one stored value and its expiration metadata.
type Entry struct {
	Value string

	// CreatedAt is taken from time.Now and keeps its monotonic reading, so
	// expiry is immune to wall-clock steps.
	CreatedAt time.Time

	// TTL is only meaningful when HasTTL is set. It is never negative.
	TTL    time.Duration
	HasTTL bool
}

// IsExpired reports whether the entry's TTL has elapsed at now.
//
// Elapsed time is compared at millisecond granularity: an entry with a
// 50ms TTL is still live at 50.9ms and expired from 51ms on.
func (e *Entry) IsExpired(now time.Time) bool {
	if !e.HasTTL {
		return false
	}
	return now.Sub(e.CreatedAt).Truncate(time.Millisecond) > e.TTL
}
