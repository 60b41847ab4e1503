// Package main provides the entry point for tinykv-server.
//
// tinykv-server is an in-memory key-value server speaking a subset of the
// Redis serialization protocol (PING, ECHO, GET, SET with PX).
//
// Usage:
//
//	tinykv-server --config /etc/tinykv/server.yaml
//	TINYKV_SERVER__REDIS__ADDR=0.0.0.0:6379 tinykv-server
//
// Configuration comes from defaults, then the YAML file, then TINYKV_
// environment variables. Changes to the file's log level are applied
// without a restart.
package main
