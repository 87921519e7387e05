package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("numWorkerThreads: 16\nhashMapPageSize: 1048576\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.NumWorkerThreads)
	require.Equal(t, 1048576, cfg.HashMapPageSize)
	require.Equal(t, Default().StopTimeout, cfg.StopTimeout)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("STREAMCORE_NUMWORKERTHREADS", "32")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 32, cfg.NumWorkerThreads)
}

func TestValidateRejectsBadThreadCount(t *testing.T) {
	cfg := Default()
	cfg.NumWorkerThreads = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedBitmapBounds(t *testing.T) {
	cfg := Default()
	cfg.ShredderMaxBitmaps = cfg.ShredderInitialBitmaps - 1
	require.Error(t, cfg.Validate())
}
