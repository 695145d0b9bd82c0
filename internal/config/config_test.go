package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerEndpointAddr)
	assert.Equal(t, "fueltrack.db", c.DatabaseFile)
	assert.Equal(t, 30*time.Second, c.FlushInterval)
	assert.Equal(t, 15*time.Second, c.RequestTimeout)
	assert.Equal(t, 10, c.LogMaxSizeMB)
	assert.Equal(t, 3, c.LogMaxBackups)
	assert.False(t, c.Debug)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ServerEndpointAddr)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
}
