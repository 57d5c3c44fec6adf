// Package config holds the process-wide, immutable configuration surface.
// A Config is built once at startup and threaded explicitly through every
// constructor; nothing in this module reads it back out of a global or a
// peer goroutine.
package config

import "time"

// Config is the startup-time configuration surface.
type Config struct {
	// TargetDir is the root under which per-country directories are created.
	TargetDir string
	// BaseURL is the upstream GeoNames dump root, e.g.
	// "https://download.geonames.org/export/dump/".
	BaseURL string
	// ProxyHost and ProxyPort configure an optional HTTP proxy for outbound
	// requests. Both empty means no proxy.
	ProxyHost string
	ProxyPort string

	// StaleAfter is how old an etag marker may be before a country is
	// considered due for refresh.
	StaleAfter time.Duration
	// RetryWait is the pause between retry rounds in the fetch coordinator.
	RetryWait time.Duration
	// RetryLimit is the number of attempts (including the first) before a
	// coordinator call fails with FailedAfterRetries.
	RetryLimit int
	// ProgressFraction is the byte-fraction step between progress pulses
	// during TSV parsing, e.g. 0.01 for one pulse per 1% of the file.
	ProgressFraction float64
	// MinPopulation is the inclusive population floor for class-P records.
	MinPopulation int64

	// Countries is an explicit allow-list of ISO2 codes. A nil/empty slice
	// means "all countries from the master index".
	Countries []string

	// MaxParallelCountries bounds how many country workers the manager
	// starts concurrently.
	MaxParallelCountries int64

	// Trace enables verbose logging.
	Trace bool
}

// Defaults returns a Config populated with the documented defaults. Callers
// overwrite TargetDir, BaseURL, and Countries as needed.
func Defaults() Config {
	return Config{
		BaseURL:              "https://download.geonames.org/export/dump/",
		StaleAfter:           86400 * time.Second,
		RetryWait:            5 * time.Second,
		RetryLimit:           3,
		ProgressFraction:     0.01,
		MinPopulation:        500,
		MaxParallelCountries: 8,
	}
}

// UseProxy reports whether a proxy was configured.
func (c *Config) UseProxy() bool { return c.ProxyHost != "" }
