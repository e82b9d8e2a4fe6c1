package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15*time.Second, cfg.Store.FetchTimeout)
	assert.Equal(t, 6090, cfg.Gateway.Port)
	assert.Equal(t, "@every 1m", cfg.Gateway.IngestSchedule)
	assert.Equal(t, 25, cfg.Display.PageSize)
	assert.Equal(t, "endpoint", cfg.Display.ResourceType)
	assert.True(t, filepath.IsAbs(cfg.Database.Path))
}

func TestSaveLoadAndSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, Set(cfg, "gateway.port", "7001"))
	require.NoError(t, Set(cfg, "database.driver", "badger"))
	require.NoError(t, Set(cfg, "store.fetch_timeout", "2s"))
	assert.Error(t, Set(cfg, "gateway.nope", "1"))
	require.NoError(t, Save(cfg, path))

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, again.Gateway.Port)
	assert.Equal(t, "badger", again.Database.Driver)
	assert.Equal(t, 2*time.Second, again.Store.FetchTimeout)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ATLAS_GATEWAY_PORT", "7100")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Gateway.Port)
}
