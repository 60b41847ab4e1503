// Package memory provides the in-memory key-value table for tinykv.
//
// The table maps string keys to string values with an optional per-key
// time-to-live measured from the moment the value was written.
//
// Thread Safety:
//
// A single mutex guards the whole table. Every Get, Set and sweep is
// serialized against every other one, across all connections, and the lock
// is held only for the duration of one call. Sharding is not done here.
//
// Expiration:
//
// Reads are lazy: Get reports an entry whose TTL has elapsed as absent but
// leaves it in the table. Physical removal only happens in Sweep, which the
// optional Sweeper runs on an interval.
package memory
