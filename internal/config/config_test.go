package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves the test into dir and restores the working directory on
// cleanup, so the implicit ./config.yaml lookup sees a known tree.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	// Run from an empty directory so no stray config.yaml is picked up.
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "gotok", cfg.Logger.ServiceName)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 512, cfg.Browser.EventBufferSize)
	assert.Equal(t, time.Second, cfg.Scrape.RequestDelay)
	assert.Equal(t, 10, cfg.Scrape.MaxScrollTries)
	assert.False(t, cfg.Captcha.Manual)
}

func TestLoad_ReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gotok.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  level: debug
  format: json
browser:
  headless: true
scrape:
  request_delay: 2s
captcha:
  manual: true
  solver_url: https://solver.example.test
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2*time.Second, cfg.Scrape.RequestDelay)
	assert.True(t, cfg.Captcha.Manual)
	assert.Equal(t, "https://solver.example.test", cfg.Captcha.SolverURL)

	// Values the file leaves out keep their defaults.
	assert.Equal(t, 512, cfg.Browser.EventBufferSize)
	assert.Equal(t, 10, cfg.Scrape.MaxScrollTries)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GOTOK_LOGGER_LEVEL", "warn")
	t.Setenv("GOTOK_BROWSER_HEADLESS", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  format: xml
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger.format")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"zero buffer", func(c *Config) { c.Browser.EventBufferSize = 0 }, "event_buffer_size"},
		{"negative ttl", func(c *Config) { c.Browser.EventTTL = -time.Second }, "event_ttl"},
		{"zero wait tries", func(c *Config) { c.Scrape.ContentWaitTries = 0 }, "content_wait_tries"},
		{"zero scroll tries", func(c *Config) { c.Scrape.MaxScrollTries = 0 }, "max_scroll_tries"},
		{"zero reply batch", func(c *Config) { c.Scrape.ReplyBatchSize = 0 }, "reply_batch_size"},
		{"manual solve without a window", func(c *Config) {
			c.Captcha.Manual = true
			c.Browser.Headless = true
		}, "visible browser window"},
		{"manual solve headful is fine", func(c *Config) {
			c.Captcha.Manual = true
			c.Browser.Headless = false
		}, ""},
		{"bad format", func(c *Config) { c.Logger.Format = "yaml" }, "logger.format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefault()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
