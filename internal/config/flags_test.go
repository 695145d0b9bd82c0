package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_parseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("overrides from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-a", "http://sync.example:9000", "-d", "/tmp/x.db", "-i", "60", "-t", "5", "-v"}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFlags(cfg)

		assert.Equal(t, "http://sync.example:9000", cfg.ServerEndpointAddr)
		assert.Equal(t, "/tmp/x.db", cfg.DatabaseFile)
		assert.Equal(t, 60*time.Second, cfg.FlushInterval)
		assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
		assert.True(t, cfg.Debug)
	})

	t.Run("no flags keeps defaults", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFlags(cfg)

		assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerEndpointAddr)
		assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	})

	t.Run("unknown flags are ignored", func(t *testing.T) {
		os.Args = []string{"testbin", "-unknown", "x", "-a", "http://sync.example:9000"}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseFlags(cfg)

		assert.Equal(t, "http://sync.example:9000", cfg.ServerEndpointAddr)
	})
}
