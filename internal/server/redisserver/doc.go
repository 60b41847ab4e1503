// Package redisserver serves a subset of RESP2 over TCP.
//
// Requests are single arrays of bulk strings. Supported commands:
//   - PING [message]
//   - ECHO message
//   - GET key
//   - SET key value [PX milliseconds]
//
// Command errors are answered with an error reply and the connection stays
// open. Malformed frames get a final error reply and close only the
// offending connection.
package redisserver
