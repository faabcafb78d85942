package config_test

import (
	"os"
	"testing"

	"github.com/reacherhq/rch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "RCH_DATABASE_MAX_CONNECTIONS", "RCH_MINIMUM_TASK_CONCURRENCY",
		"RCH_MAXIMUM_CONCURRENT_TASK_FETCH", "RCH_HTTP_HOST", "PORT", "RCH_PROXY_HOST",
		"RCH_PROXY_PORT", "RCH_FROM_EMAIL", "RCH_SAASIFY_SECRET", "RCH_BULK_ENABLED",
		"RCH_BULK_MAX_ITEMS", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	} {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, uint16(8080), cfg.HTTPPort)
	assert.Equal(t, 10, cfg.MinTaskConcurrency)
	assert.Equal(t, 20, cfg.MaxFetchConcurrency)
	assert.Equal(t, 5000, cfg.BulkMaxItems)
	assert.True(t, cfg.BulkEnabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("PORT", "9090")
	os.Setenv("RCH_BULK_MAX_ITEMS", "42")
	os.Setenv("RCH_SAASIFY_SECRET", "topsecret")
	defer clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, uint16(9090), cfg.HTTPPort)
	assert.Equal(t, 42, cfg.BulkMaxItems)
	assert.Equal(t, "topsecret", cfg.SaasifySecret)
}

func TestLoad_MalformedIsFatal(t *testing.T) {
	clearEnv(t)
	os.Setenv("RCH_BULK_MAX_ITEMS", "not-a-number")
	defer clearEnv(t)

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_InvalidHTTPHost(t *testing.T) {
	clearEnv(t)
	os.Setenv("RCH_HTTP_HOST", "not-an-ip")
	defer clearEnv(t)

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_YAMLOverlay(t *testing.T) {
	clearEnv(t)
	f, err := os.CreateTemp(t.TempDir(), "rch-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("worker:\n  min_concurrency: 3\n  max_fetch_concurrency: 7\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := config.Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MinTaskConcurrency)
	assert.Equal(t, 7, cfg.MaxFetchConcurrency)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	os.Setenv("RCH_MINIMUM_TASK_CONCURRENCY", "99")
	defer clearEnv(t)

	f, err := os.CreateTemp(t.TempDir(), "rch-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("worker:\n  min_concurrency: 3\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := config.Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.MinTaskConcurrency)
}
