// Package config loads the runtime settings of the fueltrack client:
// defaults first, then a JSON file (when -c/-config points at one), then
// command-line flags. Later sources take precedence.
package config

import "time"

// Config holds runtime settings for the fueltrack client.
type Config struct {
	// ServerEndpointAddr is the base URL of the remote store's REST API.
	ServerEndpointAddr string

	// DatabaseFile is the path of the on-device sqlite database.
	DatabaseFile string

	// FlushInterval is the background sync period.
	FlushInterval time.Duration

	// RequestTimeout bounds one remote HTTP call.
	RequestTimeout time.Duration

	// LogFile enables size-rotated file logging when non-empty; otherwise
	// logs go to stderr.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// Debug lowers the log level to debug.
	Debug bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabaseFile = "fueltrack.db"
	c.FlushInterval = 30 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.LogMaxSizeMB = 10
	c.LogMaxBackups = 3
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
