package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
		require.NoError(t, err)

		assert.Equal(t, DefaultSessionTTLMinutes, cfg.SessionTTLMinutes)
		assert.Equal(t, DefaultPollIntervalMs, cfg.PollIntervalMs)
		assert.Empty(t, cfg.BackendURL)
	})

	t.Run("reads settings from yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := `
backendUrl: https://project.example.com
backendKey: some-key
portalUrl: https://arena.example.com
sessionTtlMinutes: 10
pollIntervalMs: 500
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://project.example.com", cfg.BackendURL)
		assert.Equal(t, "https://arena.example.com", cfg.PortalURL)
		assert.Equal(t, 10*time.Minute, cfg.SessionTTL())
		assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	})

	t.Run("unset tunables fall back to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backendUrl: https://x\n"), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
		assert.Equal(t, 2*time.Second, cfg.PollInterval())
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backendUrl: [broken"), 0600))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.BackendURL = "https://project.example.com"
	assert.Error(t, cfg.Validate())

	cfg.BackendKey = "key"
	assert.Error(t, cfg.Validate())

	cfg.PortalURL = "https://arena.example.com"
	assert.NoError(t, cfg.Validate())
}
