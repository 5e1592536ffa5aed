// Package config provides configuration management for hotreload.
package config

import "time"

// Default configuration values.
const (
	// DefaultDebounce is the settling period per watched file.
	DefaultDebounce = 75 * time.Millisecond

	// DefaultMetricsAddr is where `hotreload serve` exposes HTTP diagnostics.
	DefaultMetricsAddr = "127.0.0.1:9464"

	// DefaultRemovePolicy keeps the last good document when a file is deleted.
	DefaultRemovePolicy = "keep"

	// AppName names the config, data and state directories.
	AppName = "hotreload"
)

// DefaultPatterns are the globs watched when a directory is given.
var DefaultPatterns = []string{
	"*.yaml",
	"*.yml",
}
