// Package config defines the tinykv-server configuration structure.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation (addresses, limits, log settings)
//
// Configuration is loaded via internal/infra/confloader from a YAML file and
// TINYKV_ environment variables.
package config
