package memory

import (
	"sync"
	"time"
)

// Store is the shared key-value table.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time

	// Counters, guarded by mu.
	hits         uint64
	misses       uint64
	expiredReads uint64
	swept        uint64
}

// Stats is a point-in-time view of the store counters.
type Stats struct {
	Keys         int
	Hits         uint64
	Misses       uint64
	ExpiredReads uint64
	Swept        uint64
}

// Option configures the Store.
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the value stored under key.
//
// A missing key and a key whose TTL has elapsed both report false. Expired
// entries are left in place.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return "", false
	}
	if e.IsExpired(s.now()) {
		s.misses++
		s.expiredReads++
		return "", false
	}

	s.hits++
	return e.Value, true
}

// Set stores value under key with no expiration, replacing any previous entry.
func (s *Store) Set(key, value string) {
	s.put(key, &Entry{Value: value})
}

// SetWithTTL stores value under key, expiring ttl after now. A negative ttl
// is treated as zero.
func (s *Store) SetWithTTL(key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	s.put(key, &Entry{Value: value, TTL: ttl, HasTTL: true})
}

func (s *Store) put(key string, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.CreatedAt = s.now()
	s.entries[key] = e
}

// Len returns the number of physically stored entries, including expired
// ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes every entry whose TTL has elapsed and returns how many were
// removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	s.swept += uint64(removed)
	return removed
}

// Stats returns the current counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Keys:         len(s.entries),
		Hits:         s.hits,
		Misses:       s.misses,
		ExpiredReads: s.expiredReads,
		Swept:        s.swept,
	}
}
