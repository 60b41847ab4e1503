// Package confloader loads configuration with koanf and watches the
// configuration file with fsnotify.
//
// Priority (highest to lowest):
//
//  1. Overrides (command-line flags)
//  2. Environment variables (TINYKV_SECTION__KEY)
//  3. Configuration file (YAML)
//  4. Values already present in the target struct
package confloader
