package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreSelfConsistent(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, "secondbrain", cfg.Name)
	require.Greater(t, cfg.TaskRunner.HardTimeLimit, cfg.TaskRunner.SoftTimeLimit)
	require.Greater(t, cfg.TaskRunner.BookHardTimeLimit, cfg.TaskRunner.BookSoftTimeLimit)
	require.Equal(t, 0.7, cfg.Mastery.CodeExerciseTestWeight)
}

func TestLoadOverlaysYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: myvault\nsession_defaults:\n  default_content_mode: exercises_only\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "myvault", cfg.Name)
	require.Equal(t, "exercises_only", cfg.Session.DefaultContentMode)
	require.Equal(t, "secondbrain.db", cfg.Store.DSN) // untouched default survives
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("OBSIDIAN_VAULT_PATH", "/tmp/myvault")
	t.Setenv("GRAPH_PASSWORD", "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/myvault", cfg.Vault.RootPath)
	require.Equal(t, "secret", cfg.Graph.Password)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}
