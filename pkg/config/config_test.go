package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 10, cfg.MaxRequestsPerSecond)
	assert.Equal(t, time.Hour, cfg.MarketsTTL)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFileAndVenueOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
http_timeout: 5s
max_requests_per_second: 3
venues:
  fxopen:
    api_key: key-1
    secret: sec-1
    uid: web-1
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)

	options := cfg.Options("FXOpen")
	assert.Equal(t, "key-1", options.Credentials.APIKey)
	assert.Equal(t, "sec-1", options.Credentials.Secret)
	assert.Equal(t, "web-1", options.Credentials.UID)
	assert.Equal(t, 5*time.Second, options.HTTPTimeout)
	assert.Equal(t, 3, options.MaxRequestsPerSecond)

	// Unknown venues still get usable public-only options.
	public := cfg.Options("btcex")
	assert.Empty(t, public.Credentials.APIKey)
	assert.Equal(t, "debug", public.LogLevel)
}
