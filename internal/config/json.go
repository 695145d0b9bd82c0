package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/fueltrack/internal/flagx"
	"github.com/dmitrijs2005/fueltrack/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// may be spelled either as strings like "30s" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	DatabaseFile       string         `json:"database_file"`
	FlushInterval      timex.Duration `json:"flush_interval"`
	RequestTimeout     timex.Duration `json:"request_timeout"`
	LogFile            string         `json:"log_file"`
	LogMaxSizeMB       int            `json:"log_max_size_mb"`
	LogMaxBackups      int            `json:"log_max_backups"`
	Debug              bool           `json:"debug"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// the -c/-config flag. Absent file path means no JSON is loaded; fields the
// file omits keep their current values. Read and unmarshal errors panic
// (startup-time misconfiguration).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DatabaseFile != "" {
		cfg.DatabaseFile = jc.DatabaseFile
	}
	if jc.FlushInterval.Duration > 0 {
		cfg.FlushInterval = jc.FlushInterval.Duration
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.LogFile != "" {
		cfg.LogFile = jc.LogFile
	}
	if jc.LogMaxSizeMB > 0 {
		cfg.LogMaxSizeMB = jc.LogMaxSizeMB
	}
	if jc.LogMaxBackups > 0 {
		cfg.LogMaxBackups = jc.LogMaxBackups
	}
	if jc.Debug {
		cfg.Debug = true
	}
}
