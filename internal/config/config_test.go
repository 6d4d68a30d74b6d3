package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lineage/internal/config"
)

func TestLoadConfig_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("LINEAGE_HOST")
	cfg, err := config.LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
}

func TestLoadConfig_CanOverrideHost(t *testing.T) {
	t.Setenv("LINEAGE_HOST", "0.0.0.0")
	cfg, err := config.LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadConfig_HarvestDefaults(t *testing.T) {
	for _, key := range []string{
		"LINEAGE_REQUESTS_PER_SECOND", "LINEAGE_MAX_RETRIES",
		"LINEAGE_BASE_DELAY", "LINEAGE_DETAIL_DELAY",
		"LINEAGE_CONCURRENCY", "LINEAGE_INCREMENTAL_DAYS",
	} {
		_ = os.Unsetenv(key)
	}

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.Harvest.RequestsPerSecond)
	assert.Equal(t, 3, cfg.Harvest.MaxRetries)
	assert.Equal(t, time.Second, cfg.Harvest.BaseDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Harvest.DetailDelay)
	assert.Equal(t, 5, cfg.Harvest.Concurrency)
	assert.Equal(t, 30, cfg.Harvest.IncrementalDays)
}

func TestLoadConfig_DurationOverride(t *testing.T) {
	t.Setenv("LINEAGE_DETAIL_DELAY", "250ms")
	t.Setenv("LINEAGE_CONCURRENCY", "8")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Harvest.DetailDelay)
	assert.Equal(t, 8, cfg.Harvest.Concurrency)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LINEAGE_PORT", "not-a-number")
	t.Setenv("LINEAGE_BASE_DELAY", "soon")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6380, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Harvest.BaseDelay)
}

func TestLoadConfig_CollectionsFileDefaultsToDataPath(t *testing.T) {
	_ = os.Unsetenv("LINEAGE_COLLECTIONS_FILE")
	t.Setenv("LINEAGE_DATA_PATH", "/srv/lineage")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/srv/lineage/collections.yaml", cfg.Storage.CollectionsFile)

	t.Setenv("LINEAGE_COLLECTIONS_FILE", "/etc/lineage/owners.yaml")
	cfg, err = config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/etc/lineage/owners.yaml", cfg.Storage.CollectionsFile)
}
