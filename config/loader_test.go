package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToEmptyConfigWithDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Session.RotationInterval)
}

func TestLoadPicksUpEnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte("session:\n  max_skipped: 32\n"), 0o644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 32, cfg.Session.MaxSkipped)
}

func TestLoadEnvironmentOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("session:\n  max_skipped: 32\n"), 0o644))
	t.Setenv("AEGIS_MAX_SKIPPED", "200")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "unknown-env"})
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Session.MaxSkipped)
}

func TestLoadRejectsInvalidSession(t *testing.T) {
	t.Setenv("AEGIS_MAX_SKIPPED", "0")
	_, err := Load(LoaderOptions{ConfigDir: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("AEGIS_MAX_SKIPPED", "-1")
	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: filepath.Join(t.TempDir(), "nope")})
	})
}
