package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   base URL of the remote store
//	-d string   path of the on-device sqlite database
//	-i int      background flush interval (in seconds)
//	-t int      remote request timeout (in seconds)
//	-l string   log file path (empty for stderr)
//	-v          debug logging
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i", "-t", "-l", "-v"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL of the remote store")
	fs.StringVar(&cfg.DatabaseFile, "d", cfg.DatabaseFile, "path of the sqlite database")
	flushInterval := fs.Int("i", int(cfg.FlushInterval.Seconds()), "background flush interval (in seconds)")
	requestTimeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "remote request timeout (in seconds)")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file path (empty for stderr)")
	fs.BoolVar(&cfg.Debug, "v", cfg.Debug, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.FlushInterval = time.Duration(*flushInterval) * time.Second
	cfg.RequestTimeout = time.Duration(*requestTimeout) * time.Second
}
