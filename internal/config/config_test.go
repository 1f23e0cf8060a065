package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.EqualValues(t, DefaultExpiry, cfg.Expiry)
	assert.EqualValues(t, DefaultMaxExpiry, cfg.MaxExpiry)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultPartConcurrency, cfg.PartConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.PathStyle)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LFSGATE_LISTEN", ":9999")
	t.Setenv("LFSGATE_DEFAULT_EXPIRY", "60")
	t.Setenv("LFSGATE_PATH_STYLE", "true")
	t.Setenv("LFSGATE_REGION", "eu-central-1")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.EqualValues(t, 60, cfg.Expiry)
	assert.True(t, cfg.PathStyle)
	assert.Equal(t, "eu-central-1", cfg.Region)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("LFSGATE_DEFAULT_EXPIRY", "0")
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestLoadRejectsMaxBelowDefault(t *testing.T) {
	t.Setenv("LFSGATE_DEFAULT_EXPIRY", "7200")
	t.Setenv("LFSGATE_MAX_EXPIRY", "600")
	_, err := Load(nil)
	assert.Error(t, err)
}
