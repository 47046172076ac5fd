package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 50, cfg.Planning.MaxBomDepth)
	require.Equal(t, 30, cfg.Planning.PreviewRatePerMinute)
	require.Equal(t, 5*time.Minute, cfg.Planning.CacheTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_bom_depth: 12\npreview_rate_per_minute: 5\ncache_ttl: 90s\n"), 0o600))
	t.Setenv("PLANNING_POLICY_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 12, cfg.Planning.MaxBomDepth)
	require.Equal(t, 5, cfg.Planning.PreviewRatePerMinute)
	require.Equal(t, 90*time.Second, cfg.Planning.CacheTTL)
}

func TestLoadConfigClampsBadPolicyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_bom_depth: -1\npreview_rate_per_minute: 0\n"), 0o600))
	t.Setenv("PLANNING_POLICY_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Planning.MaxBomDepth)
	require.Equal(t, 30, cfg.Planning.PreviewRatePerMinute)
}

func TestLoadConfigMissingPolicyFile(t *testing.T) {
	t.Setenv("PLANNING_POLICY_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)
}
