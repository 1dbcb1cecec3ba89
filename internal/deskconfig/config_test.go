package deskconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvAPIURL, "")

	cfg, file, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".helpdesk", "config.yaml"), file)
	assert.Equal(t, DefaultAPIURL, cfg.API.URL)
	assert.Equal(t, DefaultTimeout, cfg.API.Timeout)
	assert.Equal(t, ModeREST, cfg.Mode)
	assert.Equal(t, filepath.Join(home, ".helpdesk", "session.db"), cfg.SessionFile)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  url: https://desk.example.com/api/\n  timeout: 5s\nmode: Memory\n"), 0o600))
	t.Setenv(EnvAPIURL, "")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://desk.example.com/api", cfg.API.URL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, ModeMemory, cfg.Mode)

	t.Setenv(EnvAPIURL, "http://127.0.0.1:9000/api")
	cfg, _, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/api", cfg.API.URL)
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvAPIURL, "")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("api: [unterminated"), 0o600))
	_, _, err := Load(bad)
	assert.Error(t, err)

	mode := filepath.Join(dir, "mode.yaml")
	require.NoError(t, os.WriteFile(mode, []byte("mode: carrier-pigeon\n"), 0o600))
	_, _, err = Load(mode)
	assert.ErrorContains(t, err, "invalid mode")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	t.Setenv(EnvAPIURL, "")
	cfg := Default(filepath.Dir(path))
	cfg.Mode = ModeMemory
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeMemory, got.Mode)
}
