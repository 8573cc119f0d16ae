package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsMatchLibraryConstants(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, DefaultPoolSize, cfg.PoolSize)
	require.Equal(t, ".", cfg.Workdir)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoadOverridesSubsetOfFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crio.yaml")
	contents := "workdir: /var/lib/crio\npool_size: 256\nbtree_order: 64\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/crio", cfg.Workdir)
	require.Equal(t, 256, cfg.PoolSize)
	require.Equal(t, 64, cfg.BtreeOrder)

	// Fields absent from the file keep their documented defaults.
	def := Defaults()
	require.Equal(t, def.K, cfg.K)
	require.Equal(t, def.SequentialThreshold, cfg.SequentialThreshold)
	require.Equal(t, def.PrefetchLookahead, cfg.PrefetchLookahead)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workdir: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
