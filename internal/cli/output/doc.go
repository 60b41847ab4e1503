// Package output renders tinykv-cli results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: human-readable rendering (redis-cli style replies, key/value tables)
//   - json.go: JSON output
//   - yaml.go: YAML output
//   - progress.go: operation counter for long-running commands such as bench
package output
