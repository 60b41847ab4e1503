// Package command provides the tinykv-cli commands.
//
//   - root.go: the application, global flags and shared helpers
//   - kv.go: ping, echo, get, set and raw
//   - bench.go: concurrent SET/GET load with lost-update detection
package command
