package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, 10, cfg.MaxPagesPerSite)
	assert.Equal(t, 300, cfg.MaxLinksPerSite)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.PageTimeout())
	assert.False(t, cfg.BrowserMode)
	assert.Equal(t, "listings.json", cfg.OutputFile)
	assert.False(t, cfg.SaveToDB)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WORKERS", "4")
	t.Setenv("BROWSER_MODE", "true")
	t.Setenv("PAGE_LOAD_TIMEOUT", "45")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.BrowserMode)
	assert.Equal(t, 45*time.Second, cfg.PageTimeout())
}
