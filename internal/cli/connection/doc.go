// Package connection provides the tinykv-cli transport.
//
//   - client.go: a single RESP connection and reply decoding
//   - pool.go: a puddle connection pool behind a gobreaker circuit breaker
package connection
